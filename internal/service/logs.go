// internal/service/logs.go
package service

import (
	"context"
	"fmt"
)

const DefaultLogLines = 50

const clashDiagScript = `echo '== openclash.log =='; tail -n %[1]d /tmp/openclash.log 2>/dev/null
echo '== openclash_start.log =='; tail -n 20 /tmp/openclash_start.log 2>/dev/null
echo '== syslog =='; logread 2>/dev/null | grep -i clash | tail -n %[1]d
echo '== wan =='; ubus call network.interface.wan status 2>/dev/null | grep -E '"(up|address|uptime)"'`

// LogService collects router and OpenClash logs
type LogService struct {
	exec RemoteExecutor
}

func NewLogService(exec RemoteExecutor) *LogService {
	return &LogService{exec: exec}
}

// Router returns the last n lines of the system log.
func (s *LogService) Router(ctx context.Context, n int) (string, error) {
	if n <= 0 {
		n = DefaultLogLines
	}
	return output(ctx, s.exec, fmt.Sprintf("logread | tail -n %d", n))
}

// Clash gathers OpenClash logs and WAN state for diagnosis.
func (s *LogService) Clash(ctx context.Context, n int) (string, error) {
	if n <= 0 {
		n = DefaultLogLines
	}
	return bestEffort(ctx, s.exec, fmt.Sprintf(clashDiagScript, n))
}
