package dockerrun

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"pkt.systems/stevedore/schema"
)

// bootstrap runs the mounted command file from the container work dir,
// appending task output into the mounted stdout/stderr files.
const bootstrap = "/bin/sh ../command >> ../stdout.txt 2>> ../stderr.txt"

// BuildInvocation assembles the engine argument vector for one run. It is a
// pure function of its inputs; the engine binary itself is not included.
// The container runs as uid so files created under the work mount stay
// owned by the invoking user on the host.
func BuildInvocation(mounts []MountSpec, params schema.RuntimeParams, containerDir string, uid int) []string {
	args := []string{"run", "--workdir", path.Join(containerDir, workDirName), "--user", strconv.Itoa(uid)}
	if params.CPU > 0 {
		args = append(args, "--cpus", strconv.Itoa(params.CPU))
	}
	if params.MemoryLimit > 0 {
		args = append(args, "--memory", strconv.FormatInt(params.MemoryLimit, 10))
	}
	for _, mount := range mounts {
		bind := fmt.Sprintf("%s:%s", strings.TrimSuffix(mount.HostPath, "/"), strings.TrimSuffix(mount.ContainerPath, "/"))
		if !mount.Writable {
			bind += ":ro"
		}
		args = append(args, "-v", bind)
	}
	return append(args, params.Image, "/bin/sh", "-lc", bootstrap)
}
