// Package mail 买入清单邮件通知
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"net/smtp"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/enhen-x/Quant-A-Share/internal/scanner"
)

// SMTPConfig 发信配置
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
}

// ConfigFromEnv 读取 SMTP_HOST, SMTP_PORT, SMTP_USER, SMTP_PASS
func ConfigFromEnv() SMTPConfig {
	c := SMTPConfig{
		Host: os.Getenv("SMTP_HOST"),
		Port: 465,
		User: os.Getenv("SMTP_USER"),
		Pass: os.Getenv("SMTP_PASS"),
	}
	if p, err := strconv.Atoi(os.Getenv("SMTP_PORT")); err == nil {
		c.Port = p
	}
	return c
}

// Recipients 解析逗号分隔的收件人列表
func Recipients(raw string) []string {
	var out []string
	for _, e := range strings.Split(raw, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

// Mailer 邮件发送器
type Mailer struct {
	cfg  SMTPConfig
	to   []string
	send func(cfg SMTPConfig, to, subject, body string) error
}

// New 创建发送器
func New(cfg SMTPConfig, to []string) *Mailer {
	return &Mailer{cfg: cfg, to: to, send: SendMail}
}

// FromEnv 按环境变量创建发送器，收件人取 NOTIFY_EMAILS
func FromEnv() *Mailer {
	return New(ConfigFromEnv(), Recipients(os.Getenv("NOTIFY_EMAILS")))
}

// Enabled 配置完整且有收件人
func (m *Mailer) Enabled() bool {
	return m.cfg.Host != "" && m.cfg.User != "" && m.cfg.Pass != "" && len(m.to) > 0
}

// NotifyBuyList 发送买入清单，逐个收件人发送，返回最后一个错误
func (m *Mailer) NotifyBuyList(ctx context.Context, res *scanner.Result) error {
	if !m.Enabled() {
		return fmt.Errorf("邮件配置不完整，请检查 SMTP_HOST, SMTP_USER, SMTP_PASS, NOTIFY_EMAILS")
	}
	body, err := BuyListBody(res)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("【量化选股】%s 买入清单", res.Date)
	if res.Forced {
		subject += "（低于置信度阈值）"
	}

	var lastErr error
	for _, to := range m.to {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.send(m.cfg, to, subject, body); err != nil {
			lastErr = err
			log.Warn().Str("to", to).Err(err).Msg("发送邮件失败")
		} else {
			log.Info().Str("to", to).Msg("买入清单已发送")
		}
	}
	return lastErr
}

var buyListTmpl = template.Must(template.New("buylist").Funcs(template.FuncMap{
	"pct": func(v float64) string { return fmt.Sprintf("%.2f%%", v*100) },
	"num": func(v float64) string { return fmt.Sprintf("%.2f", v) },
}).Parse(`
<div style="font-family: Arial, sans-serif; max-width: 640px; margin: 0 auto; padding: 20px;">
	<h2 style="color: #10b981;">{{.Date}} 买入清单</h2>
	{{if .Forced}}<p style="color: #f59e0b;">没有股票超过置信度阈值，以下为概率最高的候选，请谨慎参考。</p>{{end}}
	<table style="width: 100%; border-collapse: collapse;">
		<tr><th>代码</th><th>名称</th><th>收盘价</th><th>涨跌幅</th><th>上涨概率</th></tr>
		{{range .Items}}<tr><td>{{.Code}}</td><td>{{.Name}}</td><td>{{num .Close}}</td><td>{{num .PctChg}}%</td><td>{{pct .Probability}}</td></tr>
		{{end}}
	</table>
	<p style="color: #64748b; font-size: 12px; margin-top: 20px;">扫描 {{.Scanned}} 只，候选 {{.Candidates}} 只。此邮件由系统自动发送，请勿回复。</p>
</div>
`))

// BuyListBody 生成买入清单邮件正文
func BuyListBody(res *scanner.Result) (string, error) {
	var buf bytes.Buffer
	if err := buyListTmpl.Execute(&buf, res); err != nil {
		return "", fmt.Errorf("生成邮件正文失败: %w", err)
	}
	return buf.String(), nil
}

// SendMail 通过 TLS 连接发送一封 HTML 邮件
func SendMail(cfg SMTPConfig, to, subject, body string) error {
	if cfg.Host == "" || cfg.User == "" || cfg.Pass == "" {
		return fmt.Errorf("邮件配置不完整，请检查 SMTP_HOST, SMTP_USER, SMTP_PASS")
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		cfg.User, to, subject, body)

	conn, err := tls.Dial("tcp", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), &tls.Config{ServerName: cfg.Host})
	if err != nil {
		return fmt.Errorf("连接邮件服务器失败: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		return fmt.Errorf("创建SMTP客户端失败: %w", err)
	}
	defer client.Close()

	if err := client.Auth(smtp.PlainAuth("", cfg.User, cfg.Pass, cfg.Host)); err != nil {
		return fmt.Errorf("邮件认证失败: %w", err)
	}
	if err := client.Mail(cfg.User); err != nil {
		return fmt.Errorf("设置发件人失败: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("设置收件人失败: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("获取写入器失败: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("写入邮件内容失败: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("关闭写入器失败: %w", err)
	}
	return client.Quit()
}
