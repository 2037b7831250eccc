package presence

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os/exec"
	"strings"
)

// AccessPointResolver returns the identifier of the access point the host
// is currently associated with. ok is false when there is none or it
// cannot be determined; Resolve never fails.
type AccessPointResolver interface {
	Resolve(ctx context.Context) (accessPointID string, ok bool)
}

// Identifiers some drivers report when the real one is hidden or absent.
var placeholderAccessPoints = map[string]bool{
	"":                  true,
	"02:00:00:00:00:00": true,
	"00:00:00:00:00:00": true,
	"<unknown bssid>":   true,
}

// IsValidAccessPointID reports whether id is a usable access point
// identifier: a hardware address that is not a known placeholder.
func IsValidAccessPointID(id string) bool {
	id = strings.ToLower(strings.TrimSpace(id))
	if placeholderAccessPoints[id] {
		return false
	}
	_, err := net.ParseMAC(id)
	return err == nil
}

// DefaultResolverCommand queries the wireless link state with iw.
// {interface} is replaced by the configured interface name.
const DefaultResolverCommand = "iw dev {interface} link"

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// CommandResolver resolves the access point by running a link-status
// command and parsing its "Connected to <bssid>" line.
type CommandResolver struct {
	args      []string
	run       commandRunner
	permitted func() bool
	logger    *slog.Logger
}

type ResolverOption func(*CommandResolver)

// WithPermissionCheck installs the check that gates resolution. When it
// returns false the resolver reports no access point.
func WithPermissionCheck(permitted func() bool) ResolverOption {
	return func(r *CommandResolver) { r.permitted = permitted }
}

func withCommandRunner(run commandRunner) ResolverOption {
	return func(r *CommandResolver) { r.run = run }
}

func NewCommandResolver(command, iface string, logger *slog.Logger, opts ...ResolverOption) (*CommandResolver, error) {
	if command == "" {
		command = DefaultResolverCommand
	}
	args := strings.Fields(strings.ReplaceAll(command, "{interface}", iface))
	if len(args) == 0 {
		return nil, fmt.Errorf("empty resolver command")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	r := &CommandResolver{
		args:      args,
		run:       runCommand,
		permitted: func() bool { return true },
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *CommandResolver) Resolve(ctx context.Context) (string, bool) {
	if !r.permitted() {
		r.logger.Debug("access point resolution not permitted")
		return "", false
	}

	out, err := r.run(ctx, r.args[0], r.args[1:]...)
	if err != nil {
		// adapter disabled, interface missing or tool not installed
		r.logger.Debug("access point resolution unavailable", "error", err)
		return "", false
	}

	id, ok := parseLinkOutput(string(out))
	if !ok {
		return "", false
	}
	return id, true
}

// parseLinkOutput extracts the BSSID from `iw dev <if> link` output:
//
//	Connected to aa:bb:cc:dd:ee:ff (on wlan0)
//	Not connected.
func parseLinkOutput(out string) (string, bool) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		rest, found := strings.CutPrefix(line, "Connected to ")
		if !found {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return "", false
		}
		id := strings.ToLower(fields[0])
		if !IsValidAccessPointID(id) {
			return "", false
		}
		return id, true
	}
	return "", false
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// StaticResolver always reports the same access point. An empty id means
// no association.
type StaticResolver string

func (s StaticResolver) Resolve(context.Context) (string, bool) {
	if !IsValidAccessPointID(string(s)) {
		return "", false
	}
	return strings.ToLower(string(s)), true
}
