package notification

import (
	"fmt"

	"github.com/smallbiznis/boxoffice/internal/providers/pdf"
)

const fallbackLanguage = "en"

var languages = []string{"ro", "ru", "en"}

type messages struct {
	ConfirmationSubject string
	InvitationSubject   string
	ReminderSubject     string
	Labels              pdf.Labels
}

var catalog = map[string]messages{
	"en": {
		ConfirmationSubject: "Your tickets for %s, order %s",
		InvitationSubject:   "Your invitation to %s, order %s",
		ReminderSubject:     "Order %s is waiting for payment",
		Labels: pdf.Labels{
			Title: "E-ticket", Order: "Order", Holder: "Ticket holder", Issued: "Issued",
			Ticket: "Ticket", Price: "Price", Used: "Already scanned at the entrance",
			Footnote: "Each code admits one person once. Do not share your tickets.",
		},
	},
	"ro": {
		ConfirmationSubject: "Biletele tale pentru %s, comanda %s",
		InvitationSubject:   "Invitația ta la %s, comanda %s",
		ReminderSubject:     "Comanda %s așteaptă plata",
		Labels: pdf.Labels{
			Title: "Bilet electronic", Order: "Comanda", Holder: "Titular", Issued: "Emis",
			Ticket: "Bilet", Price: "Preț", Used: "Deja scanat la intrare",
			Footnote: "Fiecare cod permite o singură intrare. Nu distribuiți biletele.",
		},
	},
	"ru": {
		ConfirmationSubject: "Ваши билеты на %s, заказ %s",
		InvitationSubject:   "Ваше приглашение на %s, заказ %s",
		ReminderSubject:     "Заказ %s ожидает оплаты",
		Labels: pdf.Labels{
			Title: "Электронный билет", Order: "Заказ", Holder: "Владелец", Issued: "Выдан",
			Ticket: "Билет", Price: "Цена", Used: "Уже отсканирован на входе",
			Footnote: "Каждый код действует для одного входа. Не передавайте билеты.",
		},
	},
}

// Language returns lang when templates exist for it, otherwise English.
func Language(lang string) string {
	if _, ok := catalog[lang]; ok {
		return lang
	}
	return fallbackLanguage
}

func Supported(lang string) bool {
	_, ok := catalog[lang]
	return ok
}

// FormatMoney renders minor units, e.g. 30000 MDL -> "300.00 MDL".
func FormatMoney(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, amount/100, amount%100, currency)
}
