package mailer

import (
	"bytes"
	"html/template"
)

// TransferMessage is the data rendered into transfer emails.
type TransferMessage struct {
	TransferID    string
	PatientName   string
	RequesterName string
	Type          string
	Status        string
	Reason        string
	Link          string
}

const transferRequestedTemplate = `<!DOCTYPE html>
<html>
<body>
  <p>{{.RequesterName}} requested a patient transfer ({{.Type}}).</p>
  <p><strong>Patient:</strong> {{.PatientName}}</p>
  {{if .Reason}}<p><strong>Reason:</strong> {{.Reason}}</p>{{end}}
  {{if .Link}}<p><a href="{{.Link}}">Open the transfer</a></p>{{end}}
</body>
</html>`

const transferDecidedTemplate = `<!DOCTYPE html>
<html>
<body>
  <p>Your transfer request for <strong>{{.PatientName}}</strong> was {{.Status}}.</p>
  {{if .Reason}}<p><strong>Reason:</strong> {{.Reason}}</p>{{end}}
  {{if .Link}}<p><a href="{{.Link}}">Open the transfer</a></p>{{end}}
</body>
</html>`

var (
	transferRequestedTmpl = template.Must(template.New("transfer_requested").Parse(transferRequestedTemplate))
	transferDecidedTmpl   = template.Must(template.New("transfer_decided").Parse(transferDecidedTemplate))
)

func buildTransferRequestedHTML(msg TransferMessage) (string, error) {
	var buf bytes.Buffer
	if err := transferRequestedTmpl.Execute(&buf, msg); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func buildTransferDecidedHTML(msg TransferMessage) (string, error) {
	var buf bytes.Buffer
	if err := transferDecidedTmpl.Execute(&buf, msg); err != nil {
		return "", err
	}
	return buf.String(), nil
}
