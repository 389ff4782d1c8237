package feed

import (
	"html/template"
	"net/http"
)

// handleOverlay serves a transparent browser-source page that spins a cat
// while pulses arrive. A ?token= query is forwarded to the WebSocket.
func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	overlayTmpl.Execute(w, struct {
		Version string
		BurstMS int64
	}{
		Version: s.opts.Version,
		BurstMS: s.opts.Burst.Milliseconds(),
	})
}

var overlayTmpl = template.Must(template.New("overlay").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>oiiacat {{.Version}}</title>
    <style>
        html, body { margin: 0; background: transparent; overflow: hidden; }
        #cat {
            font: 96px/1 sans-serif;
            display: inline-block;
            transition: transform 80ms linear;
        }
        #count {
            font: bold 28px -apple-system, 'Segoe UI', Roboto, sans-serif;
            color: #fff;
            text-shadow: 0 0 4px #000;
        }
        .spinning { animation: spin 0.4s linear infinite; }
        @keyframes spin { from { transform: rotateY(0deg); } to { transform: rotateY(360deg); } }
    </style>
</head>
<body>
    <div id="cat">&#128049;</div>
    <div id="count">0</div>
    <script>
        const burstMS = {{.BurstMS}};
        const cat = document.getElementById('cat');
        const count = document.getElementById('count');
        let idleTimer = null;

        function pulse(n) {
            count.textContent = n;
            cat.classList.add('spinning');
            clearTimeout(idleTimer);
            idleTimer = setTimeout(() => cat.classList.remove('spinning'), burstMS);
        }

        function connect() {
            const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
            const ws = new WebSocket(proto + '//' + location.host + '/ws' + location.search);
            ws.onmessage = (ev) => {
                const msg = JSON.parse(ev.data);
                if (msg.type === 'hello') count.textContent = msg.payload.count;
                if (msg.type === 'pulse') pulse(msg.payload.count);
            };
            ws.onclose = () => setTimeout(connect, 2000);
        }
        connect();
    </script>
</body>
</html>
`))
