package api

import (
	"net/http"
)

const editorUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>ragflow</title>
    <style>
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body {
            font-family: monospace;
            background: #f7f7f9;
            color: #22222a;
            height: 100vh;
            display: flex;
            flex-direction: column;
        }
        header {
            background: #fff;
            padding: 8px 16px;
            border-bottom: 1px solid #ddd;
            display: flex;
            gap: 8px;
            align-items: center;
        }
        header h1 { font-size: 15px; font-weight: normal; margin-right: 12px; }
        button {
            font-family: monospace;
            padding: 4px 10px;
            border: 1px solid #9a9aa8;
            background: #fff;
            border-radius: 4px;
            cursor: pointer;
        }
        button:hover { background: #eef; }
        main { flex: 1; display: flex; min-height: 0; }
        #canvas { flex: 1; background: #f7f7f9; }
        #side {
            width: 320px;
            border-left: 1px solid #ddd;
            display: flex;
            flex-direction: column;
            background: #fff;
        }
        #notice { padding: 8px; min-height: 32px; font-size: 12px; }
        #notice.error { background: #fde2e2; color: #7f1d1d; }
        #notice.ok { background: #dcfce7; color: #14532d; }
        #log { flex: 1; overflow-y: auto; font-size: 11px; padding: 8px; }
        #log div { padding: 2px 0; border-bottom: 1px solid #f0f0f0; }
        .lvl-error { color: #b91c1c; }
        .block rect.body { fill: #fff; stroke: #9a9aa8; }
        .block text { font-size: 12px; pointer-events: none; }
        .edge { fill: none; stroke: #556bd6; stroke-width: 2; }
        .edge.selected { stroke: #e04545; }
        .edge.pending { stroke-dasharray: 6 4; }
        .port { fill: #556bd6; }
        .port.hot { fill: #2eb86b; }
    </style>
</head>
<body>
    <header>
        <h1>ragflow</h1>
        <span id="palette"></span>
        <button onclick="viewport('zoom_in')">+</button>
        <button onclick="viewport('zoom_out')">-</button>
        <button onclick="viewport('fit')">fit</button>
        <button onclick="viewport('reset')">reset</button>
        <button onclick="runPipeline()">run</button>
        <button onclick="location.href='/api/templates/export?name=pipeline'">save</button>
    </header>
    <main>
        <svg id="canvas"></svg>
        <div id="side">
            <div id="notice"></div>
            <div id="log"></div>
        </div>
    </main>
    <script>
        var svg = document.getElementById('canvas');
        var statusFill = { idle: '#dde1f0', processing: '#f5d76e', success: '#a8e0b5', error: '#f2a5a5' };

        function post(path, body) {
            return fetch(path, {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify(body || {})
            }).then(function(res) { return res.json(); });
        }

        function notice(ok, msg) {
            var el = document.getElementById('notice');
            el.className = ok ? 'ok' : 'error';
            el.textContent = msg;
        }

        function el(name, attrs, parent) {
            var e = document.createElementNS('http://www.w3.org/2000/svg', name);
            for (var k in attrs) e.setAttribute(k, attrs[k]);
            if (parent) parent.appendChild(e);
            return e;
        }

        function pathOf(e) {
            return 'M' + e.from.x + ',' + e.from.y + ' C' + e.c1.x + ',' + e.c1.y + ' ' +
                e.c2.x + ',' + e.c2.y + ' ' + e.to.x + ',' + e.to.y;
        }

        function draw(scene) {
            while (svg.firstChild) svg.removeChild(svg.firstChild);
            var vp = scene.viewport;
            var g = el('g', { transform: 'translate(' + vp.translate.x + ',' + vp.translate.y + ') scale(' + vp.zoom + ')' }, svg);
            (scene.edges || []).forEach(function(e) {
                el('path', { d: pathOf(e), class: 'edge' + (e.selected ? ' selected' : '') }, g);
            });
            (scene.blocks || []).forEach(function(b) {
                var bg = el('g', { class: 'block' }, g);
                el('rect', { class: 'body', x: b.rect.x, y: b.rect.y, width: b.rect.w, height: b.rect.h, rx: 6 }, bg);
                el('rect', { x: b.header.x, y: b.header.y, width: b.header.w, height: b.header.h, rx: 6, fill: statusFill[b.status] || '#ddd' }, bg);
                el('text', { x: b.header.x + 10, y: b.header.y + 25 }, bg).textContent = b.title;
                (b.inputs || []).forEach(function(p) {
                    el('circle', { class: 'port' + (p.highlighted ? ' hot' : ''), cx: p.anchor.x, cy: p.anchor.y, r: 8 }, bg);
                    el('text', { x: p.anchor.x + 12, y: p.anchor.y + 4 }, bg).textContent = p.name;
                });
                if (b.output) {
                    el('circle', { class: 'port', cx: b.output.anchor.x, cy: b.output.anchor.y, r: 8 }, bg);
                }
                if (b.content || b.error) {
                    el('text', { x: b.rect.x + 10, y: b.rect.y + b.rect.h - 10 }, bg).textContent = (b.error || b.content).slice(0, 32);
                }
            });
            if (scene.pending) {
                el('path', { d: pathOf(scene.pending), class: 'edge pending' }, g);
            }
        }

        function refresh() {
            fetch('/api/scene').then(function(res) { return res.json(); })
                .then(function(data) { if (data.ok) draw(data.data); });
        }

        function pointer(phase, e) {
            var r = svg.getBoundingClientRect();
            post('/api/pointer', {
                phase: phase,
                x: e.clientX - r.left,
                y: e.clientY - r.top,
                button: e.button === 1 ? 1 : (e.button === 2 ? 2 : 0),
                alt: e.altKey
            }).then(function(data) { if (data.ok) draw(data.data); });
        }

        svg.addEventListener('mousedown', function(e) { pointer('down', e); });
        svg.addEventListener('mousemove', function(e) { if (e.buttons) pointer('move', e); });
        svg.addEventListener('mouseup', function(e) { pointer('up', e); });
        svg.addEventListener('wheel', function(e) {
            e.preventDefault();
            var r = svg.getBoundingClientRect();
            post('/api/viewport', { action: 'wheel', x: e.clientX - r.left, y: e.clientY - r.top, dir: e.deltaY < 0 ? 1 : -1 })
                .then(refresh);
        });

        function viewport(action) {
            var r = svg.getBoundingClientRect();
            post('/api/viewport', { action: 'size', width: r.width, height: r.height })
                .then(function() { return post('/api/viewport', { action: action }); })
                .then(refresh);
        }

        function place(type) {
            post('/api/blocks', { type: type, x: 80, y: 80 }).then(function(data) {
                if (!data.ok) notice(false, data.error);
                refresh();
            });
        }

        function runPipeline() {
            post('/api/run').then(function(data) {
                if (data.ok) {
                    notice(true, 'Pipeline ran ' + data.data.processed.length + ' blocks');
                } else {
                    notice(false, data.error);
                }
                refresh();
            });
        }

        fetch('/api/palette').then(function(res) { return res.json(); }).then(function(data) {
            var span = document.getElementById('palette');
            (data.data || []).forEach(function(k) {
                if (k.class) return;
                var b = document.createElement('button');
                b.textContent = k.title;
                b.onclick = function() { place(k.type); };
                span.appendChild(b);
            });
        });

        function connect() {
            var protocol = location.protocol === 'https:' ? 'wss:' : 'ws:';
            var ws = new WebSocket(protocol + '//' + location.host + '/ws/events');
            ws.onmessage = function(msg) {
                var e = JSON.parse(msg.data);
                var row = document.createElement('div');
                row.className = 'lvl-' + e.level;
                row.textContent = e.ts.slice(11, 19) + ' ' + e.event + (e.msg ? ' ' + e.msg : '');
                var log = document.getElementById('log');
                log.insertBefore(row, log.firstChild);
                if (e.level === 'error' && e.msg) notice(false, e.msg);
                if (e.event.indexOf('block.') === 0) refresh();
            };
            ws.onclose = function() { setTimeout(connect, 2000); };
        }

        connect();
        viewport('reset');
    </script>
</body>
</html>`

// uiHandler serves the editor page. Unknown paths under / are 404s.
func uiHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(editorUIHTML))
}
