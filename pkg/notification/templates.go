package notification

import (
	"context"
	"fmt"
	"time"
)

// SendOTP delivers a login passcode.
func (m *Mailer) SendOTP(ctx context.Context, to, code string) *Receipt {
	body := fmt.Sprintf("Your OTP is: %s. This OTP is valid for 5 minutes.", code)
	return m.Send(ctx, to, "Your OTP Code", body, "")
}

// SendResetLink delivers a password-reset link.
func (m *Mailer) SendResetLink(ctx context.Context, to, link string) *Receipt {
	body := fmt.Sprintf(
		"We received a request to reset your password.\n\n"+
			"Open the link below to choose a new one. The link is valid for 30 minutes.\n\n%s\n\n"+
			"If you did not request this, you can ignore this email.", link)
	return m.Send(ctx, to, "Password Reset Request", body, "")
}

// SendEmergencyAlert delivers the urgent SOS email with a maps link.
func (m *Mailer) SendEmergencyAlert(ctx context.Context, to, userName, message string, lat, lng float64, at time.Time) *Receipt {
	subject := fmt.Sprintf("URGENT: SOS EMERGENCY ALERT - %s NEEDS HELP", userName)
	if message == "" {
		message = "No message provided"
	}
	mapsLink := fmt.Sprintf("https://maps.google.com/?q=%f,%f", lat, lng)

	text := fmt.Sprintf(`EMERGENCY SOS ALERT

%s has triggered an emergency SOS alert and may need immediate assistance.

Message: %s
Location: %s
Time: %s

This is an automated emergency alert. Please contact emergency services if you believe this is a serious situation.`,
		userName, message, mapsLink, at.Format(time.RFC1123))

	html := fmt.Sprintf(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; border: 2px solid #ff0000; border-radius: 5px;">
  <h2 style="color: #ff0000; text-align: center;">EMERGENCY SOS ALERT</h2>
  <p style="font-size: 16px;"><strong>%s</strong> has triggered an emergency SOS alert and may need immediate assistance.</p>
  <p style="font-size: 16px;"><strong>Message:</strong> %s</p>
  <p style="font-size: 16px;"><strong>Location:</strong> <a href="%s" target="_blank">View on Google Maps</a></p>
  <p style="font-size: 16px;"><strong>Time:</strong> %s</p>
  <div style="margin-top: 30px; padding: 15px; background-color: #f8f8f8; border-radius: 5px;">
    <p style="font-size: 14px; margin: 0;">This is an automated emergency alert. Please contact emergency services if you believe this is a serious situation.</p>
  </div>
</div>`,
		userName, message, mapsLink, at.Format(time.RFC1123))

	return m.Send(ctx, to, subject, text, html)
}
