package boundary

import (
	"context"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"mini-hpc-submit/pkg/job"
	"mini-hpc-submit/pkg/scheduler"
	"mini-hpc-submit/pkg/script"
)

const labelPrefix = "mini-hpc-submit/"

// ContainerAPI is the part of the docker client the Docker boundary needs.
type ContainerAPI interface {
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
}

// Docker runs the dispatch target in a container on the local docker daemon, with the
// descriptor's memory and CPU requests as container limits. It is a single-node scheduler:
// it starts the container and returns, it does not wait for the job to finish.
type Docker struct {
	api      ContainerAPI
	image    string
	Progress io.Writer // Receives image pull progress
}

func NewDocker(image string) (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create docker client")
	}
	return NewDockerWithClient(cli, image), nil
}

func NewDockerWithClient(api ContainerAPI, image string) *Docker {
	return &Docker{
		api:      api,
		image:    image,
		Progress: io.Discard,
	}
}

func (s *Docker) Name() string {
	return "docker"
}

func (s *Docker) Submit(ctx context.Context, req scheduler.Request) (string, error) {
	d := req.Descriptor
	if d.NodeCount > 1 {
		return "", &scheduler.RejectionError{Reason: "docker runs single-node jobs only"}
	}
	if d.IsArray() {
		return "", &scheduler.RejectionError{Reason: "docker does not run array jobs"}
	}

	// The image has to be present before the container can be created.
	reader, err := s.api.ImagePull(ctx, s.image, image.PullOptions{})
	if err != nil {
		return "", &scheduler.LaunchError{Target: s.image, Err: err}
	}
	_, err = io.Copy(s.Progress, reader)
	reader.Close()
	if err != nil {
		return "", &scheduler.LaunchError{Target: s.image, Err: err}
	}

	env, labels := containerContext(req.Directives)
	command := script.Command(d)
	if d.Setup != "" {
		command = strings.TrimRight(d.Setup, "\n") + "\n" + command
	}

	resp, err := s.api.ContainerCreate(ctx, &container.Config{
		Image:  s.image,
		Cmd:    []string{"sh", "-c", command},
		Env:    env,
		Labels: labels,
		Tty:    false,
	}, &container.HostConfig{
		Resources: container.Resources{
			Memory:   int64(d.MemoryPerNode),
			NanoCPUs: int64(d.TasksPerNode*d.CpusPerTask) * 1e9,
		},
	}, nil, nil, containerName(d))
	if err != nil {
		return "", &scheduler.RejectionError{Reason: err.Error()}
	}

	if err := s.api.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", &scheduler.RejectionError{Reason: err.Error()}
	}
	for _, w := range resp.Warnings {
		log.Warnf("[boundary] -- Docker: %s", w)
	}

	id := resp.ID
	if len(id) > 12 {
		id = id[:12]
	}
	log.Infof("[boundary] -- Started container %s for job %s", id, d.JobName)
	return id, nil
}

// containerContext passes the directives to the container as JOB_* variables and labels.
func containerContext(directives job.DirectiveSet) ([]string, map[string]string) {
	env := make([]string, 0, len(directives))
	labels := make(map[string]string, len(directives))
	for _, d := range directives {
		name := "JOB_" + strings.ToUpper(strings.ReplaceAll(d.Key, "-", "_"))
		env = append(env, name+"="+d.Value)
		labels[labelPrefix+d.Key] = d.Value
	}
	return env, labels
}

func containerName(d job.JobDescriptor) string {
	return d.JobName + "-" + uuid.New().String()[:8]
}
