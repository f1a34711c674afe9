package web

// Page templates. Each page defines a "content" block that the layout
// composes.

const layoutHTML = `{{define "layout"}}<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}} · qlib</title>
<link rel="stylesheet" href="/static/style.css">
</head>
<body>
<header>
<a class="brand" href="/runs">qlib</a>
<nav><a href="/runs"{{if eq .Nav "runs"}} class="active"{{end}}>Runs</a></nav>
<span class="version">{{.Version}}</span>
</header>
<main>
{{template "content" .}}
</main>
</body>
</html>{{end}}`

const runsHTML = `{{define "content"}}
<h1>Runs</h1>
<form method="get" action="/runs" class="filters">
<select name="op">
<option value="">all operations</option>
{{range .Ops}}<option value="{{.}}"{{if eq . $.Op}} selected{{end}}>{{.}}</option>{{end}}
</select>
<button type="submit">Filter</button>
</form>
{{if .Runs}}
<table>
<thead><tr><th>ID</th><th>Operation</th><th>Started</th><th>Preview</th><th>Root</th></tr></thead>
<tbody>
{{range .Runs}}<tr>
<td><a href="/runs/{{.ID}}">{{.ID}}</a></td>
<td>{{.Op}}</td>
<td>{{formatTime .StartedAt}}</td>
<td>{{if .DryRun}}yes{{else}}no{{end}}</td>
<td>{{.Root}}</td>
</tr>{{end}}
</tbody>
</table>
<p class="pagination">
{{if gt .Pagination.Offset 0}}<a href="/runs?op={{.Op}}&offset={{sub .Pagination.Offset .Pagination.Limit}}&limit={{.Pagination.Limit}}">newer</a>{{end}}
<span>{{add .Pagination.Offset 1}}-{{add .Pagination.Offset (len .Runs)}} of {{.Pagination.Total}}</span>
{{if .Pagination.HasMore}}<a href="/runs?op={{.Op}}&offset={{add .Pagination.Offset .Pagination.Limit}}&limit={{.Pagination.Limit}}">older</a>{{end}}
</p>
{{else}}
<p class="empty">No runs recorded.</p>
{{end}}
<form method="post" action="/runs/prune" class="prune">
<label>Delete runs older than <input type="number" name="older_than_days" min="1" value="30"> days</label>
<button type="submit">Prune</button>
</form>
{{if .Message}}<p class="message">{{.Message}}</p>{{end}}
{{end}}`

const runHTML = `{{define "content"}}
<p><a href="/runs">&larr; all runs</a> · <a href="/runs/{{.Run.Run.ID}}/report.md">markdown</a></p>
<article class="report">
{{.RenderedHTML}}
</article>
{{end}}`

const errorHTML = `{{define "content"}}
<h1>Error {{.StatusCode}}</h1>
<p class="error-message">{{.Message}}</p>
<p><a href="/runs">Back to runs</a></p>
{{end}}`

const styleCSS = `body { font-family: system-ui, sans-serif; margin: 0; color: #1e1e2e; }
header { display: flex; gap: 1.5rem; align-items: center; padding: .75rem 1.5rem; background: #7c3aed; }
header a, header span { color: #fff; text-decoration: none; }
header .brand { font-weight: bold; }
header .version { margin-left: auto; opacity: .7; }
nav a.active { text-decoration: underline; }
main { padding: 1rem 1.5rem; max-width: 72rem; }
table { border-collapse: collapse; width: 100%; margin: .5rem 0 1rem; }
th, td { text-align: left; padding: .3rem .6rem; border-bottom: 1px solid #ddd; font-size: .9rem; }
th { background: #f4f4f8; }
pre { background: #f4f4f8; padding: .75rem; overflow-x: auto; }
.error-message { color: #b4264a; }
.empty, .pagination { color: #6c7086; }
.prune { margin-top: 2rem; }
`
