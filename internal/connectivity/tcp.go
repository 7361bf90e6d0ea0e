package connectivity

import (
	"context"
	"net"
	"strconv"
)

func (c *Checker) dialTCP(ctx context.Context, target Target, result *Result) {
	start := c.now()
	if !c.resolve(ctx, target.Host, result) {
		return
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", net.JoinHostPort(result.ResolvedIP, strconv.Itoa(target.Port)))
	if err != nil {
		result.Error = err.Error()
		result.ErrorCode = errorCode(err)
		return
	}
	_ = conn.Close()

	result.Success = true
	result.LatencyMs = c.elapsed(start)
}
