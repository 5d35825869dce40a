package gameserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrQueryTimeout is returned when a server does not answer a UDP query in
// time. Its Code is 408.
var ErrQueryTimeout = &QueryError{Code: 408, Msg: "timeout connecting to server"}

// QueryError describes a failed UDP query.
type QueryError struct {
	Code int
	Msg  string
}

func (e *QueryError) Error() string { return fmt.Sprintf("%s (%d)", e.Msg, e.Code) }

// QueryPort returns the UDP query port for a game port.
func QueryPort(gamePort int) int { return gamePort + 1 }

// Query sends a \type\ query to the server's query port and collects the
// \key\value pairs until a packet ends with \final\.
func Query(ctx context.Context, host string, gamePort int, queryType string, timeout time.Duration) (map[string]string, error) {
	addr := net.JoinHostPort(host, fmt.Sprint(QueryPort(gamePort)))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("setting deadline: %w", err)
	}

	if _, err := conn.Write([]byte(`\` + queryType + `\`)); err != nil {
		return nil, fmt.Errorf("sending query: %w", err)
	}

	size := 4096
	if queryType == "consolelog" {
		size = 65536
	}
	buf := make([]byte, size)
	var fields []string
	for {
		n, err := conn.Read(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return nil, ErrQueryTimeout
			}
			return nil, fmt.Errorf("reading query response: %w", err)
		}
		part, final := splitPacket(string(buf[:n]))
		fields = append(fields, part...)
		if final {
			break
		}
	}
	return pairs(fields), nil
}

// splitPacket splits a \k\v\k\v\ packet into its fields and reports
// whether it carries the final marker.
func splitPacket(p string) ([]string, bool) {
	p = strings.TrimPrefix(p, `\`)
	p = strings.TrimSuffix(p, `\`)
	if p == "" {
		return nil, false
	}
	fields := strings.Split(p, `\`)
	if fields[len(fields)-1] == "final" {
		return fields[:len(fields)-1], true
	}
	return fields, false
}

func pairs(fields []string) map[string]string {
	out := make(map[string]string, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		if fields[i] == "queryid" {
			continue
		}
		out[fields[i]] = fields[i+1]
	}
	return out
}
