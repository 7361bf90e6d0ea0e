package connectivity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// defaultDBUser is used when a database target names no user. A server
// that rejects it has still proven the network path.
const defaultDBUser = "idrotate"

// pingSQL opens a connection and pings. An error reported by the database
// server itself (bad login, unknown database) counts as reachable.
func (c *Checker) pingSQL(ctx context.Context, target Target, result *Result) {
	start := c.now()
	if !c.resolve(ctx, target.Host, result) {
		return
	}

	driver, dsn := c.dataSource(target, result.ResolvedIP)
	db, err := c.openDB(driver, dsn)
	if err != nil {
		result.Error = fmt.Sprintf("failed to open %s connection: %v", driver, err)
		return
	}
	defer db.Close()

	err = db.PingContext(ctx)
	if err != nil {
		code, answered := serverErrorCode(err)
		if !answered {
			result.Error = err.Error()
			result.ErrorCode = errorCode(err)
			return
		}
		result.ErrorCode = code
		result.Error = err.Error()
	}

	result.Success = true
	result.LatencyMs = c.elapsed(start)
}

func (c *Checker) dataSource(target Target, ip string) (string, string) {
	user := target.User
	if user == "" {
		user = defaultDBUser
	}

	if target.Protocol == ProtocolMySQL {
		cfg := mysql.NewConfig()
		cfg.User = user
		cfg.Net = "tcp"
		cfg.Addr = ip + ":" + strconv.Itoa(target.Port)
		cfg.Timeout = c.timeout
		return "mysql", cfg.FormatDSN()
	}

	return "postgres", fmt.Sprintf("host=%s port=%d user=%s dbname=postgres sslmode=prefer connect_timeout=%d",
		ip, target.Port, user, int(c.timeout/time.Second))
}

// serverErrorCode reports whether err came from a database server
func serverErrorCode(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return "PG" + string(pqErr.Code), true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return "MYSQL" + strconv.Itoa(int(myErr.Number)), true
	}
	return "", false
}
