package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/campers-dev/campers/internal/compute"
	"github.com/campers-dev/campers/internal/runconfig"
	"github.com/campers-dev/campers/internal/sshtransport"
)

// diagnose renders a remediation message for err to w and returns the
// process exit code to use, matching campers/cli/main.py's exception
// dispatch table: credentials errors, region/VPC errors, known AWS API
// error codes, config validation errors, and SSH connectivity errors each
// get a specific, actionable message instead of a bare Go error string.
// Returns false if err doesn't match any known case, so the caller can
// fall back to a generic message.
func diagnose(w io.Writer, err error) (int, bool) {
	var credsErr *compute.ProviderCredentialsError
	if errors.As(err, &credsErr) {
		fmt.Fprintln(w, "AWS credentials not found")
		fmt.Fprintln(w, "Configure your credentials:")
		fmt.Fprintln(w, "  aws configure")
		fmt.Fprintln(w, "Or set environment variables:")
		fmt.Fprintln(w, "  export AWS_ACCESS_KEY_ID=...")
		fmt.Fprintln(w, "  export AWS_SECRET_ACCESS_KEY=...")
		return 1, true
	}

	var apiErr *compute.ProviderAPIError
	if errors.As(err, &apiErr) {
		if strings.Contains(apiErr.Message, "No default VPC") {
			region := "the configured region"
			if idx := strings.Index(apiErr.Message, "in region "); idx >= 0 {
				region = strings.TrimSpace(apiErr.Message[idx+len("in region "):])
			}
			fmt.Fprintf(w, "No default VPC in %s\n", region)
			fmt.Fprintln(w, "Fix it:")
			fmt.Fprintln(w, "  campers setup")
			fmt.Fprintln(w, "Or manually:")
			fmt.Fprintf(w, "  aws ec2 create-default-vpc --region %s\n", region)
			fmt.Fprintln(w, "Or use a different region:")
			fmt.Fprintln(w, "  campers run --region us-west-2")
			return 1, true
		}
		fmt.Fprintf(w, "AWS API error: %s\n", apiErr.Error())
		if hint := apiErr.RemediationHint(); hint != "" {
			fmt.Fprintf(w, "  %s\n", hint)
		}
		return 1, true
	}

	var verr *runconfig.ValidationError
	if errors.As(err, &verr) && verr.Field == "sync_paths" && verr.Kind == runconfig.KindMissing {
		fmt.Fprintln(w, "Configuration error")
		fmt.Fprintln(w, "startup_script requires sync_paths to be configured")
		fmt.Fprintln(w, "Add sync_paths to your configuration:")
		fmt.Fprintln(w, "  sync_paths:")
		fmt.Fprintln(w, "    - local: ./src")
		fmt.Fprintln(w, "      remote: /home/ubuntu/src")
		return 2, true
	}
	if errors.As(err, &verr) {
		fmt.Fprintf(w, "Configuration error: %s\n", verr.Error())
		return 2, true
	}

	var connErr *sshtransport.ConnectionError
	if errors.As(err, &connErr) {
		fmt.Fprintln(w, "SSH connectivity error")
		fmt.Fprintln(w, "This usually means:")
		fmt.Fprintln(w, "  - Instance not yet ready")
		fmt.Fprintln(w, "  - Security group blocking SSH")
		fmt.Fprintln(w, "  - Network connectivity issues")
		fmt.Fprintln(w, "Debugging steps:")
		fmt.Fprintln(w, "  1. Wait 30-60 seconds and try again")
		fmt.Fprintln(w, "  2. Check security group allows port 22")
		fmt.Fprintln(w, "  3. Verify instance is running: campers list")
		return 1, true
	}

	return 0, false
}
