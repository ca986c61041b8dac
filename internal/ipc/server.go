package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"platen/internal/daemon"
	"platen/internal/history"
	"platen/internal/logging"
	"platen/internal/logs"
)

// serviceName is the RPC namespace every method is registered under.
const serviceName = "Platen"

// closeDrainTimeout bounds how long Close waits for connected clients to
// hang up before their connections are severed.
const closeDrainTimeout = 2 * time.Second

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer configures the IPC server at the given socket path. Any stale
// socket file left by a dead process is removed first.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logging.NewComponentLogger(logger, "ipc"), ctx: serverCtx}
	if err := rpcServer.RegisterName(serviceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logging.NewComponentLogger(logger, "ipc"),
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// Serve accepts RPC connections until the server is closed.
func (s *Server) Serve() {
	s.logger.Debug("ipc server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed", logging.Error(err))
				continue
			}
			s.trackConn(conn)
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.forgetConn(c)
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file. Clients are given a
// short grace period to hang up before their connections are severed.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(closeDrainTimeout):
		s.closeConns()
		<-drained
	}
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path), logging.Error(err))
	}
}

func (s *Server) trackConn(c net.Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) forgetConn(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.Close()
	}
}

// service carries the RPC method set. Every exported method follows the
// net/rpc signature convention.
type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = fromStatus(s.daemon.Status(s.ctx))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Info("shutdown requested over ipc")
	s.daemon.RequestShutdown()
	resp.Stopped = true
	return nil
}

func (s *service) ProjectList(_ ProjectListRequest, resp *ProjectListResponse) error {
	manifests := s.daemon.Projects()
	resp.Projects = make([]Project, 0, len(manifests))
	for _, manifest := range manifests {
		resp.Projects = append(resp.Projects, FromManifest(manifest))
	}
	resp.Stale = s.daemon.ProjectsStale()
	return nil
}

func (s *service) ProjectShow(req ProjectShowRequest, resp *ProjectShowResponse) error {
	manifest, err := s.daemon.Project(strings.TrimSpace(req.ID))
	if err != nil {
		return err
	}
	resp.Project = FromManifest(manifest)
	return nil
}

func (s *service) ProjectReload(_ ProjectReloadRequest, resp *ProjectReloadResponse) error {
	count, err := s.daemon.ReloadProjects()
	if err != nil {
		return err
	}
	resp.Count = count
	s.logger.Info("projects reloaded over ipc", logging.Int("project_count", count))
	return nil
}

func (s *service) RunScript(req RunScriptRequest, resp *RunScriptResponse) error {
	result, err := s.daemon.RunScript(s.ctx, req.Plugin, req.Script, req.Args)
	if err != nil {
		return err
	}
	resp.State = string(result.State)
	resp.ExitCode = result.ExitCode
	resp.Stdout = result.Stdout
	resp.Stderr = result.Stderr
	return nil
}

func (s *service) RunStart(req RunStartRequest, resp *RunStartResponse) error {
	runID, err := s.daemon.StartScript(req.Plugin, req.Script, req.Args)
	if err != nil {
		return err
	}
	resp.RunID = runID
	return nil
}

func (s *service) PipelineValidate(req PipelineValidateRequest, resp *PipelineValidateResponse) error {
	result := s.daemon.ValidatePipeline(ToPipelineConfig(req.Pipeline))
	resp.Valid = result.Valid
	resp.Reason = result.Reason
	return nil
}

func (s *service) PipelineStart(req PipelineStartRequest, resp *PipelineStartResponse) error {
	runID, err := s.daemon.StartPipeline(ToPipelineConfig(req.Pipeline))
	if err != nil {
		return err
	}
	resp.RunID = runID
	return nil
}

func (s *service) RunEvents(req RunEventsRequest, resp *RunEventsResponse) error {
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	ctx := s.ctx
	if wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	events, done, err := s.daemon.RunEvents(ctx, req.RunID, req.AfterSeq, wait)
	if err != nil {
		return err
	}
	resp.Events = make([]RunEvent, 0, len(events))
	for _, event := range events {
		resp.Events = append(resp.Events, FromRunEvent(event))
	}
	resp.Done = done
	return nil
}

func (s *service) Cancel(_ CancelRequest, resp *CancelResponse) error {
	runID, ok := s.daemon.CancelActive()
	resp.RunID = runID
	resp.Cancelled = ok
	return nil
}

func (s *service) RunsList(req RunsListRequest, resp *RunsListResponse) error {
	statuses := make([]history.Status, 0, len(req.Statuses))
	for _, raw := range req.Statuses {
		status, err := history.ParseStatus(raw)
		if err != nil {
			return err
		}
		statuses = append(statuses, status)
	}
	runs, err := s.daemon.Runs(s.ctx, req.Limit, statuses...)
	if err != nil {
		return err
	}
	resp.Runs = make([]Run, 0, len(runs))
	for _, run := range runs {
		if converted := FromRun(run); converted != nil {
			resp.Runs = append(resp.Runs, *converted)
		}
	}
	return nil
}

func (s *service) RunsShow(req RunsShowRequest, resp *RunsShowResponse) error {
	run, err := s.daemon.Run(s.ctx, strings.TrimSpace(req.ID))
	if err != nil {
		return err
	}
	resp.Run = *FromRun(run)
	return nil
}

func (s *service) RunsClear(_ RunsClearRequest, resp *RunsClearResponse) error {
	removed, err := s.daemon.ClearRuns(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.logger.Info("run history cleared over ipc", logging.Int("removed", removed))
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	ctx := s.ctx
	if wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Read(ctx, logPath, logs.Options{
		Offset: req.Offset,
		Limit:  req.Limit,
		Wait:   wait,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}
