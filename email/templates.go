package email

import (
	"bytes"
	"html/template"
)

var forgotPasswordTemplate = template.Must(template.New("forgot").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Password reset</h2>
  <p>Hello {{.Name}},</p>
  <p>We received a request to reset your Workbench password. Use the temporary password below to set a new one:</p>
  <p style="font-size: 20px; font-weight: bold; letter-spacing: 2px;">{{.TempPassword}}</p>
  <p>This temporary password expires in {{.ExpiresIn}}.</p>
  <p>If you did not request a reset you can ignore this email.</p>
</body>
</html>`))

var resetSuccessTemplate = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Password changed</h2>
  <p>Hello {{.Name}},</p>
  <p>Your Workbench password was reset successfully. If this was not you, contact your manager immediately.</p>
</body>
</html>`))

// ForgotPassword builds the temporary password email.
func ForgotPassword(to, name, tempPassword, expiresIn string) (Message, error) {
	var body bytes.Buffer
	err := forgotPasswordTemplate.Execute(&body, map[string]string{
		"Name":         name,
		"TempPassword": tempPassword,
		"ExpiresIn":    expiresIn,
	})
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      []string{to},
		Subject: "Password Reset - Workbench",
		Body:    body.String(),
		IsHTML:  true,
	}, nil
}

func PasswordResetSuccess(to, name string) (Message, error) {
	var body bytes.Buffer
	if err := resetSuccessTemplate.Execute(&body, map[string]string{"Name": name}); err != nil {
		return Message{}, err
	}
	return Message{
		To:      []string{to},
		Subject: "Password Reset Successful - Workbench",
		Body:    body.String(),
		IsHTML:  true,
	}, nil
}
