package notify

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"
)

func buildSummarySubject(events []ReloginRequiredEvent) string {
	if len(events) == 1 {
		return fmt.Sprintf("%s: %s needs to sign in again", senderName, events[0].Account)
	}
	return fmt.Sprintf("%s: %d accounts need to sign in again", senderName, len(events))
}

var emailSummaryHTMLTpl = template.Must(template.New("relogin-summary").Parse(`<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>{{ .Sender }}</title></head>
<body style="font-family:Arial,Helvetica,sans-serif;color:#1f2937;background:#ffffff;">
<h2 style="font-size:18px;margin:0 0 8px;">Sign in required</h2>
<p style="font-size:14px;margin:0 0 16px;">{{ .Total }} account(s) lost their session between {{ .Start }} and {{ .End }}.
Their commissions are left out of every total until they are added again.</p>
<table cellpadding="6" cellspacing="0" style="border-collapse:collapse;font-size:13px;">
<tr style="background:#f3f4f6;text-align:left;"><th>Account</th><th>Signed out at</th><th>Reason</th></tr>
{{- range .Rows }}
<tr style="border-top:1px solid #e5e7eb;"><td>{{ .Account }}</td><td>{{ .At }}</td><td>{{ .Reason }}</td></tr>
{{- end }}
</table>
<p style="font-size:12px;color:#6b7280;margin-top:16px;">Sent by {{ .Sender }}.</p>
</body>
</html>
`))

type summaryRow struct {
	At      string
	Account string
	Reason  string
}

func buildSummaryEmailBody(events []ReloginRequiredEvent) (htmlBody string, textBody string, err error) {
	if len(events) == 0 {
		return "", "", errors.New("no events")
	}

	rows := make([]summaryRow, 0, len(events))
	var minAt, maxAt time.Time
	for i, evt := range events {
		at := time.Now()
		if evt.At > 0 {
			at = time.UnixMilli(evt.At)
		}
		if i == 0 || at.Before(minAt) {
			minAt = at
		}
		if i == 0 || at.After(maxAt) {
			maxAt = at
		}
		reason := strings.TrimSpace(evt.Reason)
		if reason == "" {
			reason = "refresh rejected"
		}
		rows = append(rows, summaryRow{
			At:      at.Format(timeLayout),
			Account: strings.TrimSpace(evt.Account),
			Reason:  reason,
		})
	}

	data := struct {
		Sender string
		Total  int
		Start  string
		End    string
		Rows   []summaryRow
	}{
		Sender: senderName,
		Total:  len(events),
		Start:  minAt.Format(timeLayout),
		End:    maxAt.Format(timeLayout),
		Rows:   rows,
	}

	var buf bytes.Buffer
	if err := emailSummaryHTMLTpl.Execute(&buf, data); err != nil {
		return "", "", err
	}

	text := new(strings.Builder)
	text.WriteString("Accounts need to sign in again\n")
	fmt.Fprintf(text, "%d account(s), from %s to %s\n", len(events), data.Start, data.End)
	for _, row := range rows {
		fmt.Fprintf(text, "- %s | %s | %s\n", row.At, row.Account, row.Reason)
	}

	return buf.String(), text.String(), nil
}
