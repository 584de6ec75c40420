package relayapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aegis-sign/custody/internal/client"
)

// SnapshotSource 提供客户端状态快照。
type SnapshotSource interface {
	Snapshot() client.Snapshot
}

type debugSnapshot struct {
	Client    client.Snapshot `json:"client"`
	Timestamp time.Time       `json:"timestamp"`
}

// DebugHandler 返回 /debug/client 所需的 handler，输出中不含任何凭证内容。
func DebugHandler(src SnapshotSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := debugSnapshot{Client: src.Snapshot(), Timestamp: time.Now()}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	})
}
