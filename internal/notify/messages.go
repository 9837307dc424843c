package notify

import (
	"fmt"
	"time"
)

type AppointmentInfo struct {
	CustomerName      string
	ProfessionalName  string
	ProfessionalPhone string
	ServiceName       string
	StartsAt          time.Time
	PrepaidCents      int64
}

func formatWhen(t time.Time) string {
	return t.Format("02/01/2006 às 15:04")
}

func formatBRL(cents int64) string {
	return fmt.Sprintf("R$ %d,%02d", cents/100, cents%100)
}

func ConfirmedCustomerMessage(info AppointmentInfo) string {
	return fmt.Sprintf(
		"Olá %s! Seu pagamento de %s foi aprovado e seu horário está confirmado: %s com %s em %s.",
		info.CustomerName, formatBRL(info.PrepaidCents), info.ServiceName, info.ProfessionalName, formatWhen(info.StartsAt),
	)
}

func ConfirmedProfessionalMessage(info AppointmentInfo) string {
	return fmt.Sprintf(
		"Novo agendamento confirmado: %s, %s em %s.",
		info.CustomerName, info.ServiceName, formatWhen(info.StartsAt),
	)
}

func HoldExpiredMessage(info AppointmentInfo) string {
	return fmt.Sprintf(
		"Olá %s, o tempo para pagamento do horário de %s expirou e ele foi liberado. Escolha um novo horário para agendar.",
		info.CustomerName, formatWhen(info.StartsAt),
	)
}

func RefundedMessage(info AppointmentInfo, reason string) string {
	msg := fmt.Sprintf(
		"Olá %s, seu agendamento de %s foi cancelado e o valor de %s foi estornado.",
		info.CustomerName, formatWhen(info.StartsAt), formatBRL(info.PrepaidCents),
	)
	if reason != "" {
		msg += " Motivo: " + reason
	}
	return msg
}
