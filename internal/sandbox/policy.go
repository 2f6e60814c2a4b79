package sandbox

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Policy holds the language independent restrictions applied to every run.
type Policy struct {
	Blacklist    []string // paths hidden from executed programs
	SeccompAllow []string // permitted syscalls, everything else kills
	PIDsLimit    int64    // docker only
}

// DefaultPolicy returns the restrictions for executing untrusted programs.
func DefaultPolicy() Policy {
	return Policy{
		Blacklist: []string{"/home/", "/etc/", "/boot/", "/var/"},
		SeccompAllow: []string{
			"getcwd", "getpid", "rt_sigreturn", "brk", "close", "sched_getaffinity",
			"dup", "mmap", "getuid", "rt_sigaction", "set_robust_list", "set_tid_address",
			"rt_sigprocmask", "pread64", "sysinfo", "gettid", "getdents64", "lseek",
			"geteuid", "sigaltstack", "getrandom", "clone", "futex", "arch_prctl",
			"fcntl", "poll", "readlink", "access", "mprotect", "munmap", "write",
			"prlimit64", "newfstatat", "getegid", "exit_group", "readlinkat", "ioctl",
			"openat", "read", "getgid",
		},
		PIDsLimit: 64,
	}
}

// firejailArgs renders the firejail command line for config.
func (p Policy) firejailArgs(config RunConfig) []string {
	args := []string{"--quiet", "--shell=none", "--noroot", "--net=none"}

	switch config.Profile {
	case ProfileCompile:
		args = append(args, "--private")
	case ProfileExecute:
		for _, path := range p.Blacklist {
			args = append(args, "--blacklist="+path)
		}
	}

	if config.CPUTimeLimit > 0 {
		args = append(args, fmt.Sprintf("--rlimit-cpu=%d", config.CPUTimeLimit))
	}
	// TODO: add --rlimit-as once Go binaries tolerate an address space cap.
	if config.Profile == ProfileExecute && len(p.SeccompAllow) > 0 {
		args = append(args, "--seccomp.keep="+strings.Join(p.SeccompAllow, ","))
	}

	return append(args, config.Command...)
}

type seccompRule struct {
	Names  []string `json:"names"`
	Action string   `json:"action"`
}

type seccompProfile struct {
	DefaultAction string        `json:"defaultAction"`
	Syscalls      []seccompRule `json:"syscalls"`
}

// dockerSeccomp renders the allow-list as a docker seccomp profile. The
// container runtime execs the program after installing the filter, so
// execve is always allowed.
func (p Policy) dockerSeccomp() (string, error) {
	names := append([]string{"execve"}, p.SeccompAllow...)
	raw, err := json.Marshal(seccompProfile{
		DefaultAction: "SCMP_ACT_KILL",
		Syscalls:      []seccompRule{{Names: names, Action: "SCMP_ACT_ALLOW"}},
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
