package preflight

import (
	"fmt"
	"strings"

	"dhgen/internal/config"
)

// CheckMirrorFromConfig reports the artifact mirror configuration. A
// disabled mirror passes. Credentials are not exercised.
func CheckMirrorFromConfig(cfg *config.Config) Result {
	const name = "S3 mirror"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if !cfg.Mirror.Enabled {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	if strings.TrimSpace(cfg.Mirror.Bucket) == "" {
		return Result{Name: name, Detail: "Missing bucket"}
	}
	target := "s3://" + cfg.Mirror.Bucket
	if prefix := strings.Trim(cfg.Mirror.Prefix, "/"); prefix != "" {
		target += "/" + prefix
	}
	detail := target
	if cfg.Mirror.Region != "" {
		detail = fmt.Sprintf("%s (%s)", target, cfg.Mirror.Region)
	}
	return Result{Name: name, Passed: true, Detail: detail}
}
