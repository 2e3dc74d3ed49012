package notification

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/docrelay/docrelay/internal/models"
	"github.com/docrelay/docrelay/internal/utils"
)

const noTextFound = "No text found."

const htmlTemplateSource = `<html>
  <body>
    <h2>OCR Result: {{.Filename}}</h2>
    <p><strong>Confidence:</strong> {{.Confidence}}</p>
    <p><strong>Model:</strong> {{.Model}}</p>
    {{if .PageNote}}<p><strong>Pages:</strong> {{.PageNote}}</p>{{end}}
    <hr>
    <pre style="white-space: pre-wrap; font-family: monospace;">{{.Text}}</pre>
    <hr>
    <p><em>Automatically processed by Docrelay.</em></p>
  </body>
</html>
`

var htmlTemplate = template.Must(template.New("notification").Parse(htmlTemplateSource))

type templateData struct {
	Filename   string
	Confidence string
	Model      string
	PageNote   string
	Text       string
}

// formatSubject derives the notification subject from the source filename.
func formatSubject(result *models.OCRResult) string {
	filename := result.Filename
	if filename == "" {
		filename = "document.pdf"
	}
	return fmt.Sprintf("OCR Result: %s", filename)
}

// formatTextBody renders the plain text rendition of the notification.
func formatTextBody(result *models.OCRResult) string {
	text := result.Text
	if text == "" {
		text = noTextFound
	}

	body := fmt.Sprintf(`OCR Result for: %s

Confidence: %s
Model: %s
`, result.Filename, result.Confidence, result.ModelUsed)

	if result.PageCount > 1 {
		body += fmt.Sprintf("Pages: %d\n", result.PageCount)
	}
	if result.Error != "" {
		body += fmt.Sprintf("Error: %s\n", result.Error)
	}

	body += fmt.Sprintf(`
-------- TEXT --------

%s

----------------------

Automatically processed by Docrelay.
`, text)

	return body
}

// formatHTMLBody renders the HTML rendition. Template failures fall back to
// a minimal hand-built document so delivery never hinges on the template.
func formatHTMLBody(result *models.OCRResult) string {
	text := result.Text
	if text == "" {
		text = noTextFound
	}

	data := templateData{
		Filename:   result.Filename,
		Confidence: result.Confidence.String(),
		Model:      result.ModelUsed,
		Text:       text,
	}
	if result.PageCount > 1 {
		data.PageNote = fmt.Sprintf("%d", result.PageCount)
	}

	buffer := bytes.NewBuffer(nil)
	if err := htmlTemplate.Execute(buffer, data); err != nil {
		return fmt.Sprintf(`<html><body><h2>OCR Result: %s</h2><p>%s</p></body></html>`,
			template.HTMLEscapeString(result.Filename), utils.HTMLWithLineBreaks(text))
	}
	return buffer.String()
}
