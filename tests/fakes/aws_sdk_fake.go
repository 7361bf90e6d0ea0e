package fakes

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

const (
	stageCurrent  = "AWSCURRENT"
	stagePrevious = "AWSPREVIOUS"
)

// SecretARN returns the ARN the fake reports for a secret name
func SecretARN(name string) string {
	return fmt.Sprintf("arn:aws:secretsmanager:us-east-1:123456789012:secret:%s", name)
}

// FakeSecretsManagerClient is an in-memory Secrets Manager that tracks
// versions and staging labels the way the real service does.
type FakeSecretsManagerClient struct {
	mu sync.Mutex

	// Secrets maps secret names to their data
	Secrets map[string]*SecretData
	// Errors maps secret names to errors to return from every operation
	Errors map[string]error
	// Calls counts invocations per operation name
	Calls map[string]int

	// GetSecretValueFunc allows custom behavior for GetSecretValue
	GetSecretValueFunc func(ctx context.Context, params *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error)
	// DescribeSecretFunc allows custom behavior for DescribeSecret
	DescribeSecretFunc func(ctx context.Context, params *secretsmanager.DescribeSecretInput) (*secretsmanager.DescribeSecretOutput, error)
	// PutSecretValueFunc allows custom behavior for PutSecretValue
	PutSecretValueFunc func(ctx context.Context, params *secretsmanager.PutSecretValueInput) (*secretsmanager.PutSecretValueOutput, error)
	// UpdateSecretVersionStageFunc allows custom behavior for UpdateSecretVersionStage
	UpdateSecretVersionStageFunc func(ctx context.Context, params *secretsmanager.UpdateSecretVersionStageInput) (*secretsmanager.UpdateSecretVersionStageOutput, error)
}

// SecretData holds the data for a mock secret
type SecretData struct {
	RotationEnabled bool
	// Versions maps version IDs to their value and labels
	Versions map[string]*VersionData
}

// VersionData is one version of a mock secret
type VersionData struct {
	SecretString string
	Stages       []string
}

// NewFakeSecretsManagerClient creates a new mock Secrets Manager client
func NewFakeSecretsManagerClient() *FakeSecretsManagerClient {
	return &FakeSecretsManagerClient{
		Secrets: make(map[string]*SecretData),
		Errors:  make(map[string]error),
		Calls:   make(map[string]int),
	}
}

// AddSecretString adds a secret with a single AWSCURRENT version.
// Rotation is disabled.
func (f *FakeSecretsManagerClient) AddSecretString(name, versionID, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Secrets[name] = &SecretData{
		Versions: map[string]*VersionData{
			versionID: {SecretString: value, Stages: []string{stageCurrent}},
		},
	}
}

// AddRotatingSecret adds a rotation-enabled secret with one AWSCURRENT version
func (f *FakeSecretsManagerClient) AddRotatingSecret(name, versionID, value string) {
	f.AddSecretString(name, versionID, value)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Secrets[name].RotationEnabled = true
}

// AddVersion attaches an extra version. Labels are not moved off other versions.
// An empty value models the placeholder version Secrets Manager stages as
// AWSPENDING when a rotation starts.
func (f *FakeSecretsManagerClient) AddVersion(name, versionID, value string, stages ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Secrets[name].Versions[versionID] = &VersionData{SecretString: value, Stages: stages}
}

// AddError configures the mock to return an error for a specific secret
func (f *FakeSecretsManagerClient) AddError(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[name] = err
}

// CallCount returns how many times op was invoked
func (f *FakeSecretsManagerClient) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[op]
}

// StagesOf returns a sorted copy of the labels on a version
func (f *FakeSecretsManagerClient) StagesOf(name, versionID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.Secrets[name]
	if !ok {
		return nil
	}
	v, ok := data.Versions[versionID]
	if !ok {
		return nil
	}
	stages := append([]string(nil), v.Stages...)
	sort.Strings(stages)
	return stages
}

// ValueOf returns the secret string stored for a version
func (f *FakeSecretsManagerClient) ValueOf(name, versionID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.Secrets[name]
	if !ok {
		return "", false
	}
	v, ok := data.Versions[versionID]
	if !ok {
		return "", false
	}
	return v.SecretString, true
}

// lookup resolves a name or fake ARN. Caller holds f.mu.
func (f *FakeSecretsManagerClient) lookup(op, secretID string) (string, *SecretData, error) {
	f.Calls[op]++
	name := strings.TrimPrefix(secretID, SecretARN(""))

	if err, exists := f.Errors[name]; exists {
		return name, nil, err
	}

	data, exists := f.Secrets[name]
	if !exists {
		return name, nil, &types.ResourceNotFoundException{
			Message: aws.String(fmt.Sprintf("Secrets Manager can't find the specified secret: %s", secretID)),
		}
	}
	return name, data, nil
}

// GetSecretValue mocks the GetSecretValue operation
func (f *FakeSecretsManagerClient) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	if f.GetSecretValueFunc != nil {
		return f.GetSecretValueFunc(ctx, params)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	name, data, err := f.lookup("GetSecretValue", aws.ToString(params.SecretId))
	if err != nil {
		return nil, err
	}

	versionID := aws.ToString(params.VersionId)
	stage := aws.ToString(params.VersionStage)
	if versionID == "" && stage == "" {
		stage = stageCurrent
	}
	if versionID == "" {
		versionID = holderOf(data, stage)
	}

	version, ok := data.Versions[versionID]
	// A version staged before any value was put behaves as missing
	if !ok || version.SecretString == "" || (stage != "" && !contains(version.Stages, stage)) {
		return nil, &types.ResourceNotFoundException{
			Message: aws.String(fmt.Sprintf("Secrets Manager can't find the specified secret value for VersionId: %s, VersionStage: %s", versionID, stage)),
		}
	}

	return &secretsmanager.GetSecretValueOutput{
		ARN:           aws.String(SecretARN(name)),
		Name:          aws.String(name),
		SecretString:  aws.String(version.SecretString),
		VersionId:     aws.String(versionID),
		VersionStages: append([]string(nil), version.Stages...),
	}, nil
}

// DescribeSecret mocks the DescribeSecret operation
func (f *FakeSecretsManagerClient) DescribeSecret(ctx context.Context, params *secretsmanager.DescribeSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error) {
	if f.DescribeSecretFunc != nil {
		return f.DescribeSecretFunc(ctx, params)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	name, data, err := f.lookup("DescribeSecret", aws.ToString(params.SecretId))
	if err != nil {
		return nil, err
	}

	stages := make(map[string][]string, len(data.Versions))
	for id, v := range data.Versions {
		// Versions with no labels are deprecated and not reported
		if len(v.Stages) > 0 {
			stages[id] = append([]string(nil), v.Stages...)
		}
	}

	return &secretsmanager.DescribeSecretOutput{
		ARN:                aws.String(SecretARN(name)),
		Name:               aws.String(name),
		RotationEnabled:    aws.Bool(data.RotationEnabled),
		VersionIdsToStages: stages,
	}, nil
}

// PutSecretValue mocks the PutSecretValue operation. Repeating a request
// with the same token and value is a no-op, like the real service.
func (f *FakeSecretsManagerClient) PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error) {
	if f.PutSecretValueFunc != nil {
		return f.PutSecretValueFunc(ctx, params)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	name, data, err := f.lookup("PutSecretValue", aws.ToString(params.SecretId))
	if err != nil {
		return nil, err
	}

	versionID := aws.ToString(params.ClientRequestToken)
	value := aws.ToString(params.SecretString)
	stages := params.VersionStages
	if len(stages) == 0 {
		stages = []string{stageCurrent}
	}

	if existing, ok := data.Versions[versionID]; ok {
		if existing.SecretString != "" && existing.SecretString != value {
			return nil, &types.ResourceExistsException{
				Message: aws.String(fmt.Sprintf("a version with VersionId %s already exists with different contents", versionID)),
			}
		}
		existing.SecretString = value
	} else {
		data.Versions[versionID] = &VersionData{SecretString: value}
	}

	for _, stage := range stages {
		attach(data, stage, versionID)
	}

	return &secretsmanager.PutSecretValueOutput{
		ARN:           aws.String(SecretARN(name)),
		Name:          aws.String(name),
		VersionId:     aws.String(versionID),
		VersionStages: append([]string(nil), data.Versions[versionID].Stages...),
	}, nil
}

// UpdateSecretVersionStage mocks the UpdateSecretVersionStage operation.
// Moving AWSCURRENT tags the previous holder with AWSPREVIOUS.
func (f *FakeSecretsManagerClient) UpdateSecretVersionStage(ctx context.Context, params *secretsmanager.UpdateSecretVersionStageInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UpdateSecretVersionStageOutput, error) {
	if f.UpdateSecretVersionStageFunc != nil {
		return f.UpdateSecretVersionStageFunc(ctx, params)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	name, data, err := f.lookup("UpdateSecretVersionStage", aws.ToString(params.SecretId))
	if err != nil {
		return nil, err
	}

	stage := aws.ToString(params.VersionStage)
	moveTo := aws.ToString(params.MoveToVersionId)
	removeFrom := aws.ToString(params.RemoveFromVersionId)
	holder := holderOf(data, stage)

	if _, ok := data.Versions[moveTo]; !ok {
		return nil, &types.ResourceNotFoundException{
			Message: aws.String(fmt.Sprintf("version %s not found", moveTo)),
		}
	}
	if holder != "" && holder != moveTo && removeFrom != holder {
		return nil, &types.InvalidParameterException{
			Message: aws.String(fmt.Sprintf("the staging label %s is currently attached to version %s, specify it in RemoveFromVersionId", stage, holder)),
		}
	}
	if removeFrom != "" && removeFrom != holder {
		return nil, &types.InvalidParameterException{
			Message: aws.String(fmt.Sprintf("version %s does not carry staging label %s", removeFrom, stage)),
		}
	}

	attach(data, stage, moveTo)
	if stage == stageCurrent && holder != "" && holder != moveTo {
		attach(data, stagePrevious, holder)
	}

	return &secretsmanager.UpdateSecretVersionStageOutput{
		ARN:  aws.String(SecretARN(name)),
		Name: aws.String(name),
	}, nil
}

// attach moves stage onto versionID, removing it from any other version
func attach(data *SecretData, stage, versionID string) {
	for id, v := range data.Versions {
		if id == versionID {
			continue
		}
		v.Stages = remove(v.Stages, stage)
	}
	v := data.Versions[versionID]
	if !contains(v.Stages, stage) {
		v.Stages = append(v.Stages, stage)
	}
}

func holderOf(data *SecretData, stage string) string {
	for id, v := range data.Versions {
		if contains(v.Stages, stage) {
			return id
		}
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func remove(list []string, s string) []string {
	out := list[:0]
	for _, item := range list {
		if item != s {
			out = append(out, item)
		}
	}
	return out
}

// FakeSSMClient is a mock SSM Parameter Store client
type FakeSSMClient struct {
	// Parameters maps parameter names to their values
	Parameters map[string]string
	// Errors maps parameter names to errors to return
	Errors map[string]error
	// LastWithDecryption records the WithDecryption flag of the last call
	LastWithDecryption bool
}

// NewFakeSSMClient creates a new mock SSM client
func NewFakeSSMClient() *FakeSSMClient {
	return &FakeSSMClient{
		Parameters: make(map[string]string),
		Errors:     make(map[string]error),
	}
}

// AddParameter adds a SecureString parameter to the mock client
func (f *FakeSSMClient) AddParameter(name, value string) {
	f.Parameters[name] = value
}

// GetParameter mocks the GetParameter operation
func (f *FakeSSMClient) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	paramName := aws.ToString(params.Name)
	f.LastWithDecryption = aws.ToBool(params.WithDecryption)

	if err, exists := f.Errors[paramName]; exists {
		return nil, err
	}

	value, exists := f.Parameters[paramName]
	if !exists {
		return nil, &ssmtypes.ParameterNotFound{
			Message: aws.String(fmt.Sprintf("Parameter %s not found", paramName)),
		}
	}

	return &ssm.GetParameterOutput{
		Parameter: &ssmtypes.Parameter{
			Name:    aws.String(paramName),
			Type:    ssmtypes.ParameterTypeSecureString,
			Value:   aws.String(value),
			Version: 1,
			ARN:     aws.String(fmt.Sprintf("arn:aws:ssm:us-east-1:123456789012:parameter%s", paramName)),
		},
	}, nil
}
