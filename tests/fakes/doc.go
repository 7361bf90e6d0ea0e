// Package fakes provides test doubles for the external services idrotate
// talks to.
//
// The SDK fakes satisfy the narrow client interfaces declared next to each
// adapter, so adapters can be exercised without AWS, GCP or Azure. The
// identity fake is an httptest server speaking the v2.0 identity API.
// Fakes are manually implemented (not generated) to provide precise control
// over test behavior.
//
// Usage:
//
//	sm := fakes.NewFakeSecretsManagerClient()
//	sm.AddRotatingSecret("db-creds", "v1", `{"token":"old"}`)
//	store, _ := secretstores.NewAWSSecretsManagerStore(ctx, secretstores.AWSOptions{},
//	    secretstores.WithSecretsManagerClient(sm))
//	// Drive the rotation steps against store...
package fakes
