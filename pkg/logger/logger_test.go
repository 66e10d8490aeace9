package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitLoggersWritesPerConcernFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	t.Cleanup(func() {
		ErrorLogger, AuditLogger, RequestLogger = zap.NewNop(), zap.NewNop(), zap.NewNop()
		SecurityLogger, SystemLogger = zap.NewNop(), zap.NewNop()
	})

	require.NoError(t, InitLoggers(dir, false))

	AuditLogger.Info("task created", zap.Int64("task_id", 7))
	SecurityLogger.Info("below warn level")
	SyncLoggers()

	audit, err := os.ReadFile(filepath.Join(dir, "audit.log"))
	require.NoError(t, err)
	assert.Contains(t, string(audit), `"task_id":7`)
	assert.Contains(t, string(audit), `"timestamp"`)

	security, err := os.ReadFile(filepath.Join(dir, "security.log"))
	require.NoError(t, err)
	assert.Empty(t, security)
}
