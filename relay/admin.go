package relay

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

// NewAdminMux 管理与监控接口；bridge 不为 nil 时同时挂载 /ws
//
//	GET  /healthz
//	GET  /metrics              指标与连接数
//	GET  /peers                当前连接列表
//	GET  /admin/config         返回当前配置
//	POST /admin/config         以 JSON 载荷热更新写超时
func NewAdminMux(n *Node, bridge *Bridge) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", handleMetrics(n))
	mux.HandleFunc("/peers", handlePeers(n))
	mux.HandleFunc("/admin/config", handleAdminConfig(n))
	if bridge != nil {
		mux.HandleFunc("/ws", bridge.HandleWS)
	}
	return mux
}

func handleMetrics(n *Node) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, out := n.Registry().Len()
		writeJSON(w, http.StatusOK, map[string]any{
			"node":     n.ID(),
			"started":  n.State().Started(),
			"inbound":  in,
			"outbound": out,
			"metrics":  n.Metrics().Snapshot(),
		})
	}
}

type peerInfo struct {
	Key       string    `json:"key"`
	Direction string    `json:"direction"`
	Remote    string    `json:"remote,omitempty"`
	Since     time.Time `json:"since"`
}

func handlePeers(n *Node) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := n.Registry().Snapshot()
		peers := make([]peerInfo, 0, len(entries))
		for _, e := range entries {
			p := peerInfo{Key: e.Key, Direction: e.Direction.String(), Since: e.Since}
			if ra := e.Conn.RemoteAddr(); ra != nil {
				p.Remote = ra.String()
			}
			peers = append(peers, p)
		}
		sort.Slice(peers, func(i, j int) bool {
			if peers[i].Direction != peers[j].Direction {
				return peers[i].Direction < peers[j].Direction
			}
			return peers[i].Key < peers[j].Key
		})
		writeJSON(w, http.StatusOK, map[string]any{"peers": peers})
	}
}

func handleAdminConfig(n *Node) http.HandlerFunc {
	type cfg struct {
		WriteTimeoutMs *int64 `json:"writeTimeoutMs,omitempty"`
		DialTimeoutMs  *int64 `json:"dialTimeoutMs,omitempty"`
		MaxLineBytes   *int   `json:"maxLineBytes,omitempty"`
		DedupWindow    *int   `json:"dedupWindow,omitempty"`
		DialAttempts   *int   `json:"dialAttempts,omitempty"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			wt := n.WriteTimeout().Milliseconds()
			dt := n.cfg.DialTimeout.Milliseconds()
			writeJSON(w, http.StatusOK, cfg{
				WriteTimeoutMs: &wt,
				DialTimeoutMs:  &dt,
				MaxLineBytes:   &n.cfg.MaxLineBytes,
				DedupWindow:    &n.cfg.DedupWindow,
				DialAttempts:   &n.cfg.DialAttempts,
			})
		case http.MethodPost:
			var body cfg
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, "invalid json", http.StatusBadRequest)
				return
			}
			if body.WriteTimeoutMs == nil {
				http.Error(w, "only writeTimeoutMs can be updated", http.StatusBadRequest)
				return
			}
			if *body.WriteTimeoutMs < 0 {
				http.Error(w, "writeTimeoutMs must not be negative", http.StatusBadRequest)
				return
			}
			n.SetWriteTimeout(time.Duration(*body.WriteTimeoutMs) * time.Millisecond)
			Log.Infof("config updated: writeTimeout=%s", n.WriteTimeout())
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
