package email

// baseTemplate wraps every message body.
const baseTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { margin: 0; padding: 0; font-family: -apple-system, 'Segoe UI', Roboto, Arial, sans-serif; background: #f4f5f7; color: #111827; }
        .container { max-width: 560px; margin: 0 auto; padding: 32px 16px; }
        .card { background: #ffffff; border-radius: 8px; padding: 28px; border: 1px solid #e5e7eb; }
        .code { font-size: 32px; letter-spacing: 8px; font-weight: 700; text-align: center; margin: 24px 0; }
        .muted { color: #6b7280; font-size: 13px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="card">
            {{.Content}}
        </div>
        <p class="muted">You received this email because of activity on your wallet.</p>
    </div>
</body>
</html>`

const withdrawalOTPTemplate = `
<h2>Confirm your withdrawal</h2>
<p>Use this code to confirm the withdrawal of <strong>{{.Amount}}</strong> (reference {{.Reference}}).</p>
<div class="code">{{.Code}}</div>
<p class="muted">The code expires in a few minutes. If you did not request this withdrawal, contact support immediately.</p>
`

const withdrawalOTPText = `Your withdrawal confirmation code is {{.Code}}.
Amount: {{.Amount}}
Reference: {{.Reference}}
If you did not request this withdrawal, contact support immediately.
`
