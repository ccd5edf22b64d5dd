package web

// dashboardHTML is the embedded single-page dashboard served at /.
const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>sandhost</title>
<style>
:root {
  --bg: #0f1117;
  --surface: #1a1d27;
  --border: #2a2d3a;
  --text: #e2e8f0;
  --muted: #718096;
  --green: #48bb78;
  --red: #fc8181;
  --yellow: #f6e05e;
  --cyan: #63b3ed;
  --font: "SF Mono", "Cascadia Code", "Fira Code", "Consolas", monospace;
}
@media (prefers-color-scheme: light) {
  :root {
    --bg: #f7fafc;
    --surface: #ffffff;
    --border: #e2e8f0;
    --text: #1a202c;
    --muted: #718096;
    --green: #276749;
    --red: #c53030;
    --yellow: #975a16;
    --cyan: #2b6cb0;
  }
}
* { box-sizing: border-box; margin: 0; padding: 0; }
body {
  background: var(--bg);
  color: var(--text);
  font-family: var(--font);
  font-size: 13px;
  min-height: 100vh;
  display: flex;
  flex-direction: column;
}
header {
  display: flex;
  align-items: center;
  gap: 12px;
  padding: 12px 16px;
}
header h1 { font-size: 16px; font-weight: 600; letter-spacing: 0.05em; }
#state {
  padding: 2px 10px;
  border-radius: 10px;
  border: 1px solid var(--border);
  color: var(--muted);
}
#state.ready { color: var(--green); border-color: var(--green); }
#state.awaiting-port, #state.health-checking, #state.spawning { color: var(--yellow); }
#meta { color: var(--muted); }
#controls { margin-left: auto; display: flex; gap: 8px; }
button {
  background: var(--surface);
  color: var(--text);
  border: 1px solid var(--border);
  border-radius: 4px;
  font-family: var(--font);
  font-size: 12px;
  padding: 4px 12px;
  cursor: pointer;
}
button:hover { border-color: var(--cyan); }
#log {
  flex: 1;
  margin: 0 16px 16px 16px;
  background: var(--surface);
  border: 1px solid var(--border);
  border-radius: 6px;
  padding: 10px;
  overflow-y: auto;
  white-space: pre-wrap;
  word-break: break-all;
}
#log .srv { color: var(--cyan); }
</style>
</head>
<body>
<header>
  <h1>sandhost</h1>
  <span id="state">idle</span>
  <span id="meta"></span>
  <div id="controls">
    <button onclick="post('/api/server/start')">start</button>
    <button onclick="post('/api/server/stop')">stop</button>
  </div>
</header>
<div id="log"></div>
<script>
const stateEl = document.getElementById('state');
const metaEl = document.getElementById('meta');
const logEl = document.getElementById('log');

function post(path) {
  fetch(path, {method: 'POST'}).catch(() => {});
}

function render(status) {
  const s = status.server || {};
  stateEl.textContent = s.state || 'idle';
  stateEl.className = s.state || '';
  let meta = [];
  if (s.port) meta.push('port ' + s.port);
  if (s.pid) meta.push('pid ' + s.pid);
  if (status.uptime_seconds) meta.push('up ' + status.uptime_seconds + 's');
  metaEl.textContent = meta.join(' · ');
}

function appendLog(line) {
  const div = document.createElement('div');
  if (line.startsWith('[server]')) div.className = 'srv';
  div.textContent = line;
  logEl.appendChild(div);
  while (logEl.childNodes.length > 1000) logEl.removeChild(logEl.firstChild);
  logEl.scrollTop = logEl.scrollHeight;
}

const es = new EventSource('/events');
es.addEventListener('status', e => render(JSON.parse(e.data)));
es.addEventListener('log', e => appendLog(e.data));
</script>
</body>
</html>
`
