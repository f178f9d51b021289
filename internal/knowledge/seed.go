package knowledge

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// seedRecords is the built-in knowledge base used when the store is
// empty. It covers common CI/CD and infrastructure failures so the
// engine answers useful queries out of the box.
var seedRecords = []Record{
	{
		Failure:   "Docker build failure - permission denied",
		RootCause: "Docker build fails with permission denied error when the user lacks Docker daemon access rights",
		Solution:  "1. Add user to docker group: sudo usermod -aG docker $USER 2. Restart Docker service: sudo systemctl restart docker 3. Check Docker daemon permissions: sudo chmod 666 /var/run/docker.sock",
	},
	{
		Failure:   "Unable to find image 'docker.io/library/hello-world:latest' locally\ndocker: Error response from daemon: pull access denied for hello-world, repository does not exist or may require 'docker login'.",
		RootCause: "Docker could not pull the image from the private registry due to network timeout, connectivity issues, missing permissions, or an invalid image/tag",
		Solution:  "First check manual docker pull from artifactory. If manual pull also fails, check for the same image and tag in artifactory to verify it exists.",
	},
	{
		Failure:   "Jenkins build timeout",
		RootCause: "Jenkins builds exceed configured timeout limits due to resource constraints or inefficient build processes",
		Solution:  "1. Increase build timeout in the Jenkins job configuration 2. Optimize build steps and remove unnecessary operations 3. Check system resources (CPU, memory, disk) 4. Review build logs for bottlenecks",
	},
	{
		Failure:   "Kubernetes pod CrashLoopBackOff",
		RootCause: "Pod continuously crashes and restarts due to application errors, resource limits, or misconfiguration",
		Solution:  "1. Check pod logs: kubectl logs <pod-name> 2. Verify resource limits and requests 3. Check liveness/readiness probes 4. Review container startup command and environment variables",
	},
	{
		Failure:   "GitLab CI pipeline failure - dependency issues",
		RootCause: "Pipeline fails due to missing, incompatible, or outdated dependencies in the build environment",
		Solution:  "1. Update package versions in requirements/package files 2. Clear dependency cache 3. Lock dependency versions 4. Verify package registry connectivity",
	},
	{
		Failure:   "Unable to find image 'nginx:latest' locally docker: Error response from daemon: toomanyrequests",
		RootCause: "Docker Hub rate limiting exceeded; anonymous pulls are limited to 100 per 6 hours",
		Solution:  "1. Login to Docker Hub: docker login 2. Use an authenticated account for higher limits 3. Implement an image caching strategy 4. Use alternative registries or mirrors",
	},
	{
		Failure:   "Ansible playbook failed - SSH connection timeout",
		RootCause: "Ansible cannot establish an SSH connection to target hosts due to network issues, authentication problems, or firewall restrictions",
		Solution:  "1. Verify SSH connectivity: ssh user@host 2. Check SSH keys: ssh-add -l 3. Update inventory with correct IPs/hostnames 4. Configure SSH timeout in ansible.cfg",
	},
	{
		Failure:   "Terraform apply failed - resource already exists",
		RootCause: "Terraform tries to create resources that already exist, usually due to state file mismatch or manual resource creation outside Terraform",
		Solution:  "1. Import existing resources: terraform import 2. Refresh state: terraform refresh 3. Review changes with terraform plan 4. Consider data sources for existing resources",
	},
}

// Seed inserts the built-in knowledge base into an empty store.
// A store that already holds records is left untouched.
func Seed(ctx context.Context, store Store, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	n, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("checking store: %w", err)
	}
	if n > 0 {
		return nil
	}

	for _, rec := range seedRecords {
		if _, err := store.Add(ctx, rec); err != nil {
			return fmt.Errorf("seeding record %q: %w", rec.Failure, err)
		}
	}

	logger.Info("seeded built-in knowledge base", zap.Int("records", len(seedRecords)))
	return nil
}
