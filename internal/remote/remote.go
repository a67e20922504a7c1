// Package remote runs PowerShell on Windows hosts over WinRM.
package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/masterzen/winrm"

	"soclog/internal/fault"
)

const (
	// DefaultHTTPPort is the WinRM listener port for plain HTTP.
	DefaultHTTPPort = 5985
	// DefaultHTTPSPort is the WinRM listener port for HTTPS.
	DefaultHTTPSPort = 5986
	// DefaultOperationTimeout bounds a single WS-Management operation.
	DefaultOperationTimeout = 120 * time.Second
)

// Result is the outcome of one remote script execution.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Executor runs a PowerShell script on a remote host.
type Executor interface {
	RunPowerShell(ctx context.Context, script string) (Result, error)
}

// Options controls how a WinRM session is opened.
type Options struct {
	HTTPS            bool
	Port             int
	Insecure         bool
	NTLM             bool
	OperationTimeout time.Duration
}

// Credentials identify the account used on the remote host.
type Credentials struct {
	Address  string
	Username string
	Password string
}

// Dialer opens an Executor for a host.
type Dialer func(ctx context.Context, creds Credentials, opts Options) (Executor, error)

// WinRM is an Executor backed by a WinRM client.
type WinRM struct {
	client  *winrm.Client
	address string
}

// Dial builds a WinRM client for creds. The WinRM protocol is connectionless,
// so authentication problems surface on the first RunPowerShell call.
func Dial(_ context.Context, creds Credentials, opts Options) (Executor, error) {
	if creds.Address == "" {
		return nil, fault.New(fault.KindRemote, "winrm: empty host address")
	}
	if creds.Password == "" {
		return nil, fault.New(fault.KindRemote, "winrm: no password provided")
	}

	port := opts.Port
	if port == 0 {
		port = DefaultHTTPPort
		if opts.HTTPS {
			port = DefaultHTTPSPort
		}
	}
	timeout := opts.OperationTimeout
	if timeout <= 0 {
		timeout = DefaultOperationTimeout
	}

	endpoint := winrm.NewEndpoint(creds.Address, port, opts.HTTPS, opts.Insecure, nil, nil, nil, timeout)

	params := winrm.NewParameters(fmt.Sprintf("PT%dS", int(timeout.Seconds())), "en-US", 153600)
	if opts.NTLM {
		params.TransportDecorator = func() winrm.Transporter { return &winrm.ClientNTLM{} }
	}

	client, err := winrm.NewClientWithParameters(endpoint, creds.Username, creds.Password, params)
	if err != nil {
		return nil, fault.Wrap(err, fault.KindRemote, fmt.Sprintf("winrm client for %s", creds.Address))
	}
	return &WinRM{client: client, address: creds.Address}, nil
}

// RunPowerShell encodes script and runs it through powershell.exe on the host.
func (w *WinRM) RunPowerShell(ctx context.Context, script string) (Result, error) {
	stdout, stderr, code, err := w.client.RunWithContextWithString(ctx, winrm.Powershell(script), "")
	if err != nil {
		return Result{}, fault.Wrap(err, fault.KindRemote, fmt.Sprintf("run powershell on %s", w.address))
	}
	return Result{ExitCode: code, Stdout: stdout, Stderr: stderr}, nil
}
