package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Platen.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop asks the daemon process to shut down.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Platen.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ProjectList returns every loaded project manifest.
func (c *Client) ProjectList() (*ProjectListResponse, error) {
	var resp ProjectListResponse
	if err := c.client.Call("Platen.ProjectList", ProjectListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ProjectShow returns a single project manifest by id.
func (c *Client) ProjectShow(id string) (*ProjectShowResponse, error) {
	var resp ProjectShowResponse
	if err := c.client.Call("Platen.ProjectShow", ProjectShowRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ProjectReload rescans the project roots.
func (c *Client) ProjectReload() (*ProjectReloadResponse, error) {
	var resp ProjectReloadResponse
	if err := c.client.Call("Platen.ProjectReload", ProjectReloadRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunScript executes a worker script and waits for it to finish.
func (c *Client) RunScript(req RunScriptRequest) (*RunScriptResponse, error) {
	var resp RunScriptResponse
	if err := c.client.Call("Platen.RunScript", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunStart launches a worker script without waiting for completion.
func (c *Client) RunStart(req RunStartRequest) (*RunStartResponse, error) {
	var resp RunStartResponse
	if err := c.client.Call("Platen.RunStart", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PipelineValidate checks a pipeline configuration without running it.
func (c *Client) PipelineValidate(cfg PipelineConfig) (*PipelineValidateResponse, error) {
	var resp PipelineValidateResponse
	req := PipelineValidateRequest{Pipeline: cfg}
	if err := c.client.Call("Platen.PipelineValidate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PipelineStart launches a pipeline run.
func (c *Client) PipelineStart(cfg PipelineConfig) (*PipelineStartResponse, error) {
	var resp PipelineStartResponse
	req := PipelineStartRequest{Pipeline: cfg}
	if err := c.client.Call("Platen.PipelineStart", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunEvents long-polls for journaled run events past AfterSeq.
func (c *Client) RunEvents(req RunEventsRequest) (*RunEventsResponse, error) {
	var resp RunEventsResponse
	if err := c.client.Call("Platen.RunEvents", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cancel stops the active run, if any.
func (c *Client) Cancel() (*CancelResponse, error) {
	var resp CancelResponse
	if err := c.client.Call("Platen.Cancel", CancelRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunsList returns run history rows, optionally filtered by status.
func (c *Client) RunsList(limit int, statuses []string) (*RunsListResponse, error) {
	var resp RunsListResponse
	req := RunsListRequest{Limit: limit, Statuses: statuses}
	if err := c.client.Call("Platen.RunsList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunsShow returns a single run history row.
func (c *Client) RunsShow(id string) (*RunsShowResponse, error) {
	var resp RunsShowResponse
	if err := c.client.Call("Platen.RunsShow", RunsShowRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunsClear removes finished runs from history.
func (c *Client) RunsClear() (*RunsClearResponse, error) {
	var resp RunsClearResponse
	if err := c.client.Call("Platen.RunsClear", RunsClearRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.client.Call("Platen.LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
