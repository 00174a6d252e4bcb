package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/windlass-io/windlass/internal/logger"
	"github.com/windlass-io/windlass/pkg/server"
)

const (
	// maxRequestBytes caps a single request line
	maxRequestBytes = 1 << 20

	// idleTicks expresses the idle timeout in engine ticks
	idleTicks = 20

	// writeTimeout bounds each response write
	writeTimeout = 10 * time.Second
)

// serve reads newline-delimited commands until the client disconnects, the
// idle deadline passes, or shutdown interrupts the read.
func (f *Factory) serve(id uint64, ip string, conn net.Conn) {
	defer f.release(id, ip, conn)

	connID := fmt.Sprintf("%s-%d", f.name, id)
	ctx := logger.WithContext(context.Background(), logger.NewConnContext(connID, ip))
	logger.DebugCtx(ctx, "connection accepted", logger.KeySubsystem, f.name)

	idle := idleTicks * f.Server().TickTime()
	if idle <= 0 {
		idle = time.Minute
	}

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 4096), maxRequestBytes)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(idle)); err != nil {
			return
		}
		if !sc.Scan() {
			if err := sc.Err(); err != nil && !isExpectedClose(err) {
				logger.DebugCtx(ctx, "read failed", logger.KeyError, err.Error())
			}
			return
		}

		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		resp := f.dispatch(ctx, line)
		if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return
		}
		if _, err := fmt.Fprintln(conn, resp); err != nil {
			logger.DebugCtx(ctx, "write failed", logger.KeyError, err.Error())
			return
		}
	}
}

// dispatch executes one command line and renders the reply.
//
// Commands:
//
//	ruok                    liveness probe, replies "imok"
//	create <path> [data]    create a node
//	mkdir <path>            create a container node
//	set <path> <data>       replace node data
//	get <path>              read node data
//	del <path>              delete a childless node
//	ls <path>               list children
//	stat <path>             node metadata
//	srvr                    server summary
func (f *Factory) dispatch(ctx context.Context, line string) string {
	parts := strings.SplitN(line, " ", 3)
	cmd := parts[0]
	ctx = logger.WithContext(ctx, logger.FromContext(ctx).WithCommand(cmd))

	eng := f.Server()

	switch cmd {
	case "ruok":
		if eng.State() == server.StateRunning {
			return "imok"
		}
		return renderError(server.ErrNotRunning)

	case "srvr":
		stats := eng.Stats()
		return fmt.Sprintf("state=%s txid=%d nodes=%d", stats.State, stats.LastTxid, stats.NodeCount)

	case "create", "mkdir", "set", "get", "del", "ls", "stat":
		if len(parts) < 2 {
			return "err missing path"
		}
		path := parts[1]
		var data []byte
		if len(parts) == 3 {
			data = []byte(parts[2])
		}
		return f.execute(ctx, cmd, path, data)

	default:
		return "err unknown command"
	}
}

func (f *Factory) execute(ctx context.Context, cmd, path string, data []byte) string {
	eng := f.Server()

	switch cmd {
	case "create":
		stat, err := eng.Create(path, data, false)
		if err != nil {
			return renderError(err)
		}
		logger.InfoCtx(ctx, "node created", logger.KeyPath, path)
		return fmt.Sprintf("created %s v=%d", path, stat.Version)

	case "mkdir":
		stat, err := eng.Create(path, data, true)
		if err != nil {
			return renderError(err)
		}
		logger.InfoCtx(ctx, "container created", logger.KeyPath, path)
		return fmt.Sprintf("created %s v=%d", path, stat.Version)

	case "set":
		stat, err := eng.Set(path, data)
		if err != nil {
			return renderError(err)
		}
		return fmt.Sprintf("set %s v=%d", path, stat.Version)

	case "get":
		value, stat, err := eng.Get(path)
		if err != nil {
			return renderError(err)
		}
		return fmt.Sprintf("data v=%d %s", stat.Version, value)

	case "del":
		if err := eng.Delete(path); err != nil {
			return renderError(err)
		}
		logger.InfoCtx(ctx, "node deleted", logger.KeyPath, path)
		return "ok"

	case "ls":
		names, err := eng.Children(path)
		if err != nil {
			return renderError(err)
		}
		return "children " + strings.Join(names, " ")

	case "stat":
		stat, err := eng.Stat(path)
		if err != nil {
			return renderError(err)
		}
		return fmt.Sprintf("v=%d cv=%d children=%d bytes=%d container=%t",
			stat.Version, stat.CVersion, stat.NumChildren, stat.DataLength, stat.Container)

	default:
		return "err unknown command"
	}
}

// renderError maps engine errors onto stable wire codes.
func renderError(err error) string {
	switch {
	case errors.Is(err, server.ErrNoNode):
		return "err no node"
	case errors.Is(err, server.ErrNodeExists):
		return "err node exists"
	case errors.Is(err, server.ErrNotEmpty):
		return "err not empty"
	case errors.Is(err, server.ErrBadPath):
		return "err bad path"
	case errors.Is(err, server.ErrNotRunning):
		return "err not running"
	default:
		return "err internal"
	}
}

// isExpectedClose filters the errors every shutdown produces.
func isExpectedClose(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
