package handlers

import (
	"fmt"

	"github.com/rohanthewiz/element"
	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/rweb"

	"taskflow/plan"
)

// statusPageHandler serves a minimal monitor page listing templates and
// subscribing to the progress event stream
func statusPageHandler(c rweb.Context) error {
	templates, err := deps.Templates.ListTemplates()
	if err != nil {
		logger.LogErr(err, "failed to list templates for status page")
	}

	b := element.NewBuilder()

	b.Html().R(
		b.Head().R(
			b.Title().T("taskflow"),
			b.Meta("charset", "UTF-8"),
			b.Style().T(`
				body {
					background: #1a1a1a;
					color: #ddd;
					font-family: sans-serif;
					padding: 20px;
					max-width: 900px;
					margin: 0 auto;
				}
				h1 { color: #4a9eff; }
				.template-row { padding: 6px 10px; border-bottom: 1px solid #333; }
				.template-row span { margin-right: 16px; }
				#events {
					margin-top: 20px;
					padding: 10px;
					background: #242424;
					border-radius: 4px;
					height: 300px;
					overflow-y: auto;
					font-family: monospace;
					font-size: 12px;
					white-space: pre-wrap;
				}
			`),
		),
		b.Body().R(
			b.H1().T("taskflow"),
			b.P().T("Plan templates"),
			b.Div("class", "templates").R(
				element.ForEach(templates, func(t *plan.Template) {
					b.Div("class", "template-row").R(
						b.Span().T(t.ID),
						b.Span().T(t.Title),
						b.Span().T(fmt.Sprintf("%d steps", len(t.Steps))),
					)
				}),
			),
			b.P().T("Live events"),
			b.Div("id", "events").T(""),
			b.Script().T(`
				const events = document.getElementById('events');
				const source = new EventSource('/events');
				source.onmessage = (e) => {
					events.textContent += e.data + "\n";
					events.scrollTop = events.scrollHeight;
				};
			`),
		),
	)

	return c.WriteHTML(b.String())
}
