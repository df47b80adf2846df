package docker

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/client"
)

const (
	DefaultPort         = 11434
	DefaultReadyTimeout = 60 * time.Second
	containerModelsDir  = "/root/.ollama"
)

type StartOpts struct {
	Image string
	// ModelsDir is bind-mounted as the server's model store so pulled
	// models survive between runs. Empty means the container keeps its own.
	ModelsDir    string
	Port         int
	ReadyTimeout time.Duration
	// Ready reports whether the server answers requests.
	Ready func(ctx context.Context) error
}

// Server is a generation backend running in a container on the host network.
type Server struct {
	ID  string
	cli *client.Client
}

func Start(ctx context.Context, opts *StartOpts) (*Server, error) {
	if opts.Image == "" {
		return nil, fmt.Errorf("docker image is required")
	}
	if opts.Ready == nil {
		return nil, fmt.Errorf("readiness check is required")
	}
	port := opts.Port
	if port <= 0 {
		port = DefaultPort
	}
	readyTimeout := opts.ReadyTimeout
	if readyTimeout <= 0 {
		readyTimeout = DefaultReadyTimeout
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}

	hostCfg := &container.HostConfig{NetworkMode: "host"}
	if opts.ModelsDir != "" {
		if err := os.MkdirAll(opts.ModelsDir, 0o755); err != nil {
			cli.Close()
			return nil, fmt.Errorf("creating models dir: %w", err)
		}
		hostCfg.Mounts = []mount.Mount{{
			Type:   mount.TypeBind,
			Source: opts.ModelsDir,
			Target: containerModelsDir,
		}}
	}

	createResp, err := cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config: &container.Config{
			Image:  opts.Image,
			Env:    []string{"OLLAMA_HOST=0.0.0.0:" + strconv.Itoa(port)},
			Labels: map[string]string{"llmsweep": "true"},
		},
		HostConfig: hostCfg,
	})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("creating container: %w", err)
	}
	s := &Server{ID: createResp.ID, cli: cli}

	if _, err := cli.ContainerStart(ctx, s.ID, client.ContainerStartOptions{}); err != nil {
		s.Stop()
		return nil, fmt.Errorf("starting container: %w", err)
	}

	if err := waitReady(ctx, opts.Ready, readyTimeout); err != nil {
		s.dumpLogs()
		s.Stop()
		return nil, fmt.Errorf("backend did not start: %w", err)
	}
	return s, nil
}

// Stop kills and removes the container.
func (s *Server) Stop() {
	s.cli.ContainerRemove(context.Background(), s.ID, client.ContainerRemoveOptions{Force: true})
	s.cli.Close()
}

func (s *Server) dumpLogs() {
	logReader, _ := s.cli.ContainerLogs(context.Background(), s.ID, client.ContainerLogsOptions{ShowStdout: true, ShowStderr: true, Tail: "100"})
	if logReader == nil {
		return
	}
	defer logReader.Close()
	logData, _ := io.ReadAll(logReader)
	if len(logData) > 0 {
		fmt.Fprintf(os.Stderr, "Container logs:\n%s\n", string(logData))
	}
}

func waitReady(ctx context.Context, ready func(context.Context) error, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		lastErr = ready(pingCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return fmt.Errorf("not ready after %s: %w", timeout, lastErr)
}
