package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// maxListedTransactions caps the transaction lines shown in an email.
const maxListedTransactions = 5

var emailTemplate = template.Must(template.New("weekly").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: linear-gradient(135deg, #65a30d 0%, #16a34a 100%); color: white; padding: 30px; text-align: center; border-radius: 8px 8px 0 0; }
        .stats { display: flex; justify-content: space-around; margin: 20px 0; }
        .stat-card { background: #f7fee7; padding: 20px; border-radius: 8px; text-align: center; flex: 1; margin: 0 10px; }
        .stat-value { font-size: 24px; font-weight: bold; color: #65a30d; }
        .stat-label { color: #666; font-size: 14px; }
        .transaction { border-bottom: 1px solid #eee; padding: 10px 0; }
        .footer { background: #fafaf9; padding: 20px; text-align: center; color: #666; font-size: 12px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>📊 Laporan Keuangan Mingguan</h1>
            <p>Halo {{.UserName}},</p>
            <p>Berikut ringkasan keuangan Anda minggu ini</p>
        </div>

        <div class="stats">
            <div class="stat-card">
                <div class="stat-value">Rp {{.Income}}</div>
                <div class="stat-label">Total Pemasukan</div>
            </div>
            <div class="stat-card">
                <div class="stat-value">Rp {{.Expense}}</div>
                <div class="stat-label">Total Pengeluaran</div>
            </div>
            <div class="stat-card">
                <div class="stat-value">Rp {{.Balance}}</div>
                <div class="stat-label">Saldo Bersih</div>
            </div>
        </div>

        <h3>Transaksi Terbaru ({{.TransactionCount}} transaksi)</h3>
        <div class="transactions">
            {{- range .Lines}}
            <div class="transaction">{{.}}</div>
            {{- end}}
        </div>

        <div class="footer">
            <p>Email ini dikirim otomatis oleh Financio</p>
            <p><a href="{{.DashboardURL}}">Buka Dashboard</a></p>
        </div>
    </div>
</body>
</html>
`))

// emailData feeds emailTemplate.
type emailData struct {
	UserName         string
	Income           string
	Expense          string
	Balance          string
	TransactionCount int
	Lines            []string
	DashboardURL     string
}

func renderEmail(data emailData) (string, error) {
	if len(data.Lines) > maxListedTransactions {
		data.Lines = data.Lines[:maxListedTransactions]
	}
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("renderEmail: %w", err)
	}
	return buf.String(), nil
}

// FormatRupiah groups the integer part with commas and keeps any fraction.
func FormatRupiah(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	whole := d.Truncate(0)
	out := sign + message.NewPrinter(language.English).Sprintf("%d", whole.IntPart())
	if frac := d.Sub(whole); !frac.IsZero() {
		out += strings.TrimPrefix(frac.String(), "0")
	}
	return out
}
