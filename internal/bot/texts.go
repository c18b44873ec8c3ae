package bot

import (
	"fmt"
	"html"
)

// User-facing texts. The bot speaks Russian; names are interpolated as-is.

func welcomeText(name string) string {
	return fmt.Sprintf("Привет, %s!\n\nЭтот бот предназначен для отправки важных уведомлений и информации. Для того чтобы начать получать сообщения, пожалуйста, дайте свое согласие на рассылку.", name)
}

func confirmationText(name string) string {
	return fmt.Sprintf("Отлично, %s!\n\n✅ Ваше согласие на получение рассылки сохранено.\n\nТеперь вы будете получать важные уведомления. Если захотите отписаться, используйте команду /unsubscribe.", name)
}

func unsubscribedText(name string) string {
	return fmt.Sprintf("%s, вы отписались от рассылки.\n\n✅ Ваш статус изменен на \"отказ\".\n\nЧтобы снова подписаться, используйте команду /start.", name)
}

func notSubscribedText(name string) string {
	return fmt.Sprintf("%s, вы не найдены в списке подписчиков.\n\nЕсли хотите подписаться, используйте команду /start.", name)
}

func echoText(text string) string {
	return "Эхо: " + text
}

// echoHTML escapes user input because echoes are sent with parse_mode=HTML.
func echoHTML(text string) string {
	return "Эхо: " + html.EscapeString(text)
}

const (
	consentButtonLabel = "✅ Я соглашаюсь на получение рассылки"
	callbackAckText    = "Спасибо! Ваше согласие сохранено."
)

// Audit descriptions, written the way the log sheet has always read.
const (
	auditWelcomeSent        = "Отправлено приветствие с кнопкой согласия"
	auditConsentInbound     = "Нажатие кнопки согласия"
	auditConsentGiven       = "Пользователь дал согласие на рассылку"
	auditUnsubscribed       = "Пользователь отписался от рассылки"
	auditUnsubscribeMissing = "Попытка отписки, пользователь не найден"
)
