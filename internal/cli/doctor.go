package cli

import (
	"os"
	"os/exec"

	"github.com/urfave/cli/v2"

	"github.com/campers-dev/campers/internal/cli/render/jsonrender"
	"github.com/campers-dev/campers/internal/cli/render/plain"
)

// doctorCheck is one environment/readiness probe, grounded on the
// doctorCheck{Name, OK, Detail} accumulator shape in paas_doctor_cmd.go.
type doctorCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}

// DoctorCommand reports whether the binaries and credentials campers
// depends on are available, without provisioning anything.
func DoctorCommand() *cli.Command {
	return &cli.Command{
		Name:   "doctor",
		Usage:  "Check that required binaries and credentials are present",
		Flags:  append([]cli.Flag{providerFlag}, outputFlags()...),
		Action: doctorAction,
	}
}

func doctorAction(c *cli.Context) error {
	checks, failureCount := runDoctorChecks(c.String("provider"))
	ok := failureCount == 0

	if c.Bool("json-output") {
		var err error
		if !ok {
			err = errDoctorIssuesFound
		}
		if werr := jsonrender.Write(os.Stdout, "doctor", checks, err); werr != nil {
			return cli.Exit(werr.Error(), 1)
		}
		if !ok {
			return cli.Exit("", 1)
		}
		return nil
	}

	rows := make([][]string, 0, len(checks))
	for _, chk := range checks {
		status := "OK"
		if !chk.OK {
			status = "ERR"
		}
		rows = append(rows, []string{status, chk.Name, chk.Detail})
	}
	plain.Table(os.Stdout, []string{"STATUS", "CHECK", "DETAIL"}, rows)
	if !ok {
		return cli.Exit("", 1)
	}
	return nil
}

var errDoctorIssuesFound = doctorIssuesFoundError{}

type doctorIssuesFoundError struct{}

func (doctorIssuesFoundError) Error() string { return "one or more doctor checks failed" }

func runDoctorChecks(provider string) ([]doctorCheck, int) {
	var checks []doctorCheck
	failures := 0
	push := func(name string, ok bool, detail string) {
		checks = append(checks, doctorCheck{Name: name, OK: ok, Detail: detail})
		if !ok {
			failures++
		}
	}

	if path, err := exec.LookPath("ssh"); err == nil {
		push("ssh_binary", true, path)
	} else {
		push("ssh_binary", false, "ssh client not found on PATH")
	}

	if path, err := exec.LookPath("mutagen"); err == nil {
		push("mutagen_binary", true, path)
	} else {
		push("mutagen_binary", false, "mutagen not found on PATH; sync phases will fail")
	}

	if path, err := exec.LookPath("ansible-playbook"); err == nil {
		push("ansible_binary", true, path)
	} else {
		push("ansible_binary", false, "ansible-playbook not found on PATH; playbook phases will fail")
	}

	if os.Getenv("SSH_AUTH_SOCK") != "" {
		push("ssh_agent", true, "SSH_AUTH_SOCK is set")
	} else {
		push("ssh_agent", false, "SSH_AUTH_SOCK is not set; key-file auth only")
	}

	switch provider {
	case "docker":
		if path, err := exec.LookPath("docker"); err == nil {
			push("docker_cli", true, path)
		} else {
			push("docker_cli", false, "docker not found on PATH")
		}
	default:
		hasKey := os.Getenv("AWS_ACCESS_KEY_ID") != "" || os.Getenv("AWS_PROFILE") != ""
		if hasKey {
			push("aws_credentials", true, "AWS credentials present in environment")
		} else {
			push("aws_credentials", false, "no AWS_ACCESS_KEY_ID/AWS_PROFILE; relying on shared config or IAM role")
		}
	}

	return checks, failures
}
