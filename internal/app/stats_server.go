package app

import (
	"crypto/subtle"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"suitfeed/internal/feed"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocket upgrader for live views
var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// maxHistoryPage caps /api/history responses.
const maxHistoryPage = 500

// viewMessage is pushed on /ws whenever the view changes.
type viewMessage struct {
	Version  uint64     `json:"version"`
	View     feed.View  `json:"view"`
	Extended *feed.View `json:"extended,omitempty"`
}

// historyResponse is the body of /api/history.
type historyResponse struct {
	Total   int          `json:"total"`
	Entries []feed.Entry `json:"entries"`
}

// settingsResponse is the body of /api/settings.
type settingsResponse struct {
	Info   any `json:"info,omitempty"`
	Config any `json:"config"`
}

// startHealthServer starts the HTTP server for health checks, stats and views.
func (r *Runner) startHealthServer(port int) {
	r.healthServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := r.healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("view server error", zap.Error(err))
		}
	}()
}

func (r *Runner) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// JSON stats endpoint
	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, r.GetStats())
	})

	mux.HandleFunc("/api/view", r.handleView)
	mux.HandleFunc("/api/history", r.handleHistory)
	mux.HandleFunc("/api/settings", r.handleSettings)
	mux.HandleFunc("/ws", r.handleWS)

	// HTML dashboard
	mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/" {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(dashboardHTML))
	})

	return mux
}

func (r *Runner) handleView(w http.ResponseWriter, req *http.Request) {
	kind := ViewShort
	if parseBool(req.URL.Query().Get("extended")) {
		kind = ViewExtended
	}

	view, ok := r.store.View(kind)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no view yet")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (r *Runner) handleHistory(w http.ResponseWriter, req *http.Request) {
	_, defaultLimit := r.store.Limits()
	limit, err := parseLimit(req.URL.Query().Get("limit"), defaultLimit, maxHistoryPage)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records := r.history.Recent(limit)
	resp := historyResponse{
		Total:   r.history.Size(),
		Entries: make([]feed.Entry, 0, len(records)),
	}
	for _, rec := range records {
		resp.Entries = append(resp.Entries, feed.NewEntry(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (r *Runner) handleSettings(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodGet:
		resp := settingsResponse{Config: r.liveConfig.Get()}
		if r.settingsManager != nil {
			resp.Info = r.settingsManager.GetSettingsInfo()
		}
		writeJSON(w, http.StatusOK, resp)

	case http.MethodPut, http.MethodPost:
		if r.settingsManager == nil {
			writeError(w, http.StatusNotImplemented, "settings are read-only")
			return
		}
		if !r.authorized(req) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		body, err := io.ReadAll(io.LimitReader(req.Body, 1<<20))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read body")
			return
		}

		cfg, err := r.settingsManager.ApplyJSON(req.Context(), body)
		if err != nil {
			r.logger.Warn("rejected settings update", zap.Error(err))
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		r.logger.Info("settings updated via api", zap.String("remote", req.RemoteAddr))
		writeJSON(w, http.StatusOK, settingsResponse{
			Info:   r.settingsManager.GetSettingsInfo(),
			Config: cfg,
		})

	default:
		w.Header().Set("Allow", "GET, PUT, POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// authorized checks the bearer token against SERVER_ADMIN_TOKEN. An empty
// token rejects every write.
func (r *Runner) authorized(req *http.Request) bool {
	token := r.liveConfig.Get().Server.AdminToken
	if token == "" {
		return false
	}
	got, ok := strings.CutPrefix(req.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}

func (r *Runner) handleWS(w http.ResponseWriter, req *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Drain client frames so close messages are processed
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	interval := r.liveConfig.Get().Server.PushInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var sent uint64
	push := func() bool {
		version := r.store.Version()
		if version == sent {
			return true
		}
		view, ok := r.store.View(ViewShort)
		if !ok {
			return true
		}
		msg := viewMessage{Version: version, View: view}
		if extended, ok := r.store.View(ViewExtended); ok {
			msg.Extended = &extended
		}
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(msg); err != nil {
			return false
		}
		sent = version
		return true
	}

	if !push() {
		return
	}
	for {
		select {
		case <-ticker.C:
			if !push() {
				return // Client disconnected
			}
		case <-closed:
			return
		case <-r.stopping:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			return
		}
	}
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>suitfeed</title>
    <style>
        :root {
            --bg-primary: #0d1117;
            --bg-secondary: #161b22;
            --bg-tertiary: #21262d;
            --border-color: #30363d;
            --text-primary: #c9d1d9;
            --text-secondary: #8b949e;
            --accent-blue: #58a6ff;
            --accent-green: #3fb950;
            --accent-red: #f85149;
            --accent-yellow: #d29922;
        }
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, monospace; background: var(--bg-primary); color: var(--text-primary); padding: 20px; line-height: 1.5; }
        h1 { color: var(--accent-blue); font-size: 24px; }
        h2 { color: var(--text-secondary); font-size: 14px; text-transform: uppercase; margin: 20px 0 10px; letter-spacing: 1px; }
        .header { display: flex; justify-content: space-between; align-items: center; margin-bottom: 20px; }
        .status { display: flex; align-items: center; gap: 8px; }
        .status-dot { width: 10px; height: 10px; border-radius: 50%; background: var(--accent-red); }
        .status-dot.connected { background: var(--accent-green); }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(160px, 1fr)); gap: 12px; }
        .card { background: var(--bg-secondary); border: 1px solid var(--border-color); border-radius: 8px; padding: 16px; }
        .card .label { color: var(--text-secondary); font-size: 12px; }
        .card .value { font-size: 24px; font-weight: 600; }
        .green { color: var(--accent-green); }
        .red { color: var(--accent-red); }
        .yellow { color: var(--accent-yellow); }
        #active { font-size: 20px; }
        table { width: 100%; border-collapse: collapse; background: var(--bg-secondary); border-radius: 8px; }
        th, td { padding: 8px 12px; text-align: left; border-bottom: 1px solid var(--bg-tertiary); }
        th { color: var(--text-secondary); font-size: 12px; text-transform: uppercase; }
        .empty { color: var(--text-secondary); text-align: center; padding: 20px; }
    </style>
</head>
<body>
    <div class="header">
        <h1>🃏 suitfeed</h1>
        <div class="status"><div id="wsDot" class="status-dot"></div><span id="wsStatus">Connecting...</span></div>
    </div>

    <div class="grid">
        <div class="card"><div class="label">Win rate</div><div id="winRate" class="value">-</div></div>
        <div class="card"><div class="label">Won</div><div id="won" class="value green">-</div></div>
        <div class="card"><div class="label">Lost</div><div id="lost" class="value red">-</div></div>
        <div class="card"><div class="label">Resolved / total</div><div id="progress" class="value">-</div></div>
    </div>

    <h2>Active prediction</h2>
    <div class="card"><div id="active">-</div></div>

    <h2>History</h2>
    <table>
        <thead><tr><th>Game</th><th>Suit</th><th>Status</th><th>Catch-up</th><th>Result</th><th>Time</th></tr></thead>
        <tbody id="history"><tr><td colspan="6" class="empty">-</td></tr></tbody>
    </table>

    <script>
        function esc(s) {
            return String(s).replace(/[&<>"']/g, c => ({'&':'&amp;','<':'&lt;','>':'&gt;','"':'&quot;',"'":'&#39;'}[c]));
        }

        function render(msg) {
            const v = msg.view;
            const s = v.stats;
            document.getElementById('winRate').textContent = s.win_rate + '%';
            document.getElementById('won').textContent = s.won;
            document.getElementById('lost').textContent = s.lost;
            document.getElementById('progress').textContent = (s.won + s.lost) + ' / ' + s.total;

            const active = document.getElementById('active');
            active.textContent = v.active
                ? '#' + v.active.game_number + ' ' + v.active.suit_display + ' ' + v.active.badge + ' R' + v.active.catch_up
                : '-';

            const hist = (msg.extended || v).history;
            const body = document.getElementById('history');
            if (!hist.length) {
                body.innerHTML = '<tr><td colspan="6" class="empty">-</td></tr>';
                return;
            }
            body.innerHTML = hist.map(e => {
                const cls = e.outcome.kind === 'won' ? 'green' : (e.outcome.kind === 'lost' ? 'red' : 'yellow');
                return '<tr><td>#' + esc(e.game_number) + '</td><td>' + esc(e.suit_display) +
                    '</td><td class="' + cls + '">' + esc(e.badge) + '</td><td>R' + esc(e.catch_up) +
                    '</td><td>' + esc(e.result_text) + '</td><td>' + esc(e.time_text) + '</td></tr>';
            }).join('');
        }

        function connect() {
            const protocol = window.location.protocol === 'https:' ? 'wss:' : 'ws:';
            const ws = new WebSocket(protocol + '//' + window.location.host + '/ws');
            const dot = document.getElementById('wsDot');
            const status = document.getElementById('wsStatus');

            ws.onopen = () => { dot.className = 'status-dot connected'; status.textContent = 'Live'; };
            ws.onclose = () => {
                dot.className = 'status-dot';
                status.textContent = 'Reconnecting...';
                setTimeout(connect, 3000);
            };
            ws.onmessage = (e) => render(JSON.parse(e.data));
        }

        connect();
    </script>
</body>
</html>
`
