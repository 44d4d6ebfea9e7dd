// -----------------------------------------------------------------------
// System logs - read access to the application's own log files
// -----------------------------------------------------------------------

package systemlogs

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
)

const logSuffix = ".log"

// ErrLogNotFound is returned for names that are not a log file in the logs directory.
var ErrLogNotFound = errors.New("log file not found")

type Service struct {
	logsDir string
	logger  arbor.ILogger
}

func NewService(logsDir string, logger arbor.ILogger) *Service {
	return &Service{
		logsDir: logsDir,
		logger:  logger,
	}
}

// ListLogFiles returns the log files, newest first. A missing logs directory
// means file logging is off and yields an empty list.
func (s *Service) ListLogFiles() ([]LogFile, error) {
	entries, err := os.ReadDir(s.logsDir)
	if errors.Is(err, os.ErrNotExist) {
		return []LogFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read logs directory: %w", err)
	}

	files := []LogFile{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), logSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, LogFile{
			Name:    entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})
	return files, nil
}

// GetLogContent returns the last limit entries of a log file, optionally
// restricted to levels ("info", "WRN", ...). limit <= 0 returns everything.
func (s *Service) GetLogContent(name string, limit int, levels []string) ([]LogEntry, error) {
	if name != filepath.Base(name) || !strings.HasSuffix(name, logSuffix) {
		return nil, fmt.Errorf("%s: %w", name, ErrLogNotFound)
	}

	file, err := os.Open(filepath.Join(s.logsDir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, ErrLogNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	wanted := make(map[string]bool, len(levels))
	for _, l := range levels {
		if l = strings.TrimSpace(l); l != "" {
			wanted[shortLevel(l)] = true
		}
	}

	entries := []LogEntry{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		entry := parseLogLine(line, time.Now())
		if len(wanted) > 0 && !wanted[entry.Level] {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading log file: %w", err)
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// parseLogLine parses the text writer format "15:04:05 INF > message".
// Lines in any other shape are kept whole at INF so nothing is hidden.
func parseLogLine(line string, day time.Time) LogEntry {
	parts := strings.Fields(line)
	if len(parts) < 3 || parts[2] != ">" {
		return LogEntry{Raw: line, Level: "INF", Message: line}
	}

	entry := LogEntry{Raw: line, Level: shortLevel(parts[1])}
	if t, err := time.Parse("15:04:05", parts[0]); err == nil {
		entry.Timestamp = time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), t.Second(), 0, day.Location())
	}
	if idx := strings.Index(line, ">"); idx+1 < len(line) {
		entry.Message = strings.TrimSpace(line[idx+1:])
	}
	return entry
}

// shortLevel maps level names to the three-letter codes the writer emits.
func shortLevel(level string) string {
	switch strings.ToUpper(level) {
	case "TRACE", "TRC":
		return "TRC"
	case "DEBUG", "DBG":
		return "DBG"
	case "WARN", "WARNING", "WRN":
		return "WRN"
	case "ERROR", "ERR":
		return "ERR"
	case "FATAL", "FTL":
		return "FTL"
	default:
		return "INF"
	}
}
