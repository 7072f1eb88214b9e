// Package dockerrun executes one task command inside a docker container.
//
// For each run it lays out a host directory (work/, command, stdout.txt,
// stderr.txt, docker_run.log), plans the bind mounts into the container,
// builds the docker run argument vector, and supervises the engine process
// with polled cancellation. A process-wide gate serializes container
// execution across concurrently running tasks.
package dockerrun
