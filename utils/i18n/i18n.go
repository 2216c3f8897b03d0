// Package i18n resolves the client language and translates error codes
package i18n

import (
	"golang.org/x/text/language"
)

// Supported languages; English is the fallback and must stay first
var supported = []language.Tag{
	language.English,
	language.Russian,
	language.Uzbek,
}

var matcher = language.NewMatcher(supported)

// Lang is a supported language code
type Lang string

const (
	English Lang = "en"
	Russian Lang = "ru"
	Uzbek   Lang = "uz"
)

var langs = []Lang{English, Russian, Uzbek}

// FromAcceptLanguage picks the best supported language for an Accept-Language header
func FromAcceptLanguage(header string) Lang {
	if header == "" {
		return English
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return English
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return English
	}
	return langs[idx]
}

// Parse accepts a bare language code such as "ru" or "uz-Latn"
func Parse(code string) Lang {
	return FromAcceptLanguage(code)
}

// Name returns the English name of the language, used in grader prompts
func (l Lang) Name() string {
	switch l {
	case Russian:
		return "Russian"
	case Uzbek:
		return "Uzbek"
	}
	return "English"
}

var messages = map[string]map[Lang]string{
	"VALIDATION": {
		English: "The request is invalid",
		Russian: "Некорректный запрос",
		Uzbek:   "So'rov noto'g'ri",
	},
	"INVALID_AMOUNT": {
		English: "Amount must be positive",
		Russian: "Сумма должна быть положительной",
		Uzbek:   "Miqdor musbat bo'lishi kerak",
	},
	"UNAUTHENTICATED": {
		English: "Authentication required",
		Russian: "Требуется авторизация",
		Uzbek:   "Avtorizatsiya talab qilinadi",
	},
	"UNAUTHORIZED": {
		English: "Access denied",
		Russian: "Доступ запрещён",
		Uzbek:   "Kirish taqiqlangan",
	},
	"INACTIVE_USER": {
		English: "Your account is not active or not verified",
		Russian: "Ваш аккаунт не активирован или не подтверждён",
		Uzbek:   "Hisobingiz faol emas yoki tasdiqlanmagan",
	},
	"NOT_FOUND": {
		English: "Resource not found",
		Russian: "Ресурс не найден",
		Uzbek:   "Resurs topilmadi",
	},
	"CONFLICT": {
		English: "The request conflicts with the current state",
		Russian: "Запрос конфликтует с текущим состоянием",
		Uzbek:   "So'rov joriy holatga zid",
	},
	"SESSION_TERMINAL": {
		English: "This test session is already finished",
		Russian: "Эта сессия теста уже завершена",
		Uzbek:   "Ushbu test sessiyasi allaqachon yakunlangan",
	},
	"SESSION_NOT_COMPLETED": {
		English: "The test session has not been completed",
		Russian: "Сессия теста не завершена",
		Uzbek:   "Test sessiyasi yakunlanmagan",
	},
	"INSUFFICIENT_TOKENS": {
		English: "Not enough tokens to start this test",
		Russian: "Недостаточно токенов для начала теста",
		Uzbek:   "Testni boshlash uchun tokenlar yetarli emas",
	},
	"ALREADY_CLAIMED": {
		English: "The daily bonus has already been claimed today",
		Russian: "Ежедневный бонус уже получен сегодня",
		Uzbek:   "Kunlik bonus bugun allaqachon olingan",
	},
	"EMAIL_TAKEN": {
		English: "This email is already registered",
		Russian: "Этот email уже зарегистрирован",
		Uzbek:   "Bu email allaqachon ro'yxatdan o'tgan",
	},
	"INVALID_CODE": {
		English: "The verification code is invalid or expired",
		Russian: "Код подтверждения неверен или истёк",
		Uzbek:   "Tasdiqlash kodi noto'g'ri yoki muddati o'tgan",
	},
	"PENDING_PAYMENT": {
		English: "You already have a pending payment",
		Russian: "У вас уже есть незавершённый платёж",
		Uzbek:   "Sizda allaqachon tugallanmagan to'lov mavjud",
	},
	"NO_EXAM_AVAILABLE": {
		English: "No test is available right now",
		Russian: "Сейчас нет доступных тестов",
		Uzbek:   "Hozirda mavjud test yo'q",
	},
	"RATE_LIMITED": {
		English: "Too many requests, please try again later",
		Russian: "Слишком много запросов, попробуйте позже",
		Uzbek:   "So'rovlar juda ko'p, keyinroq urinib ko'ring",
	},
	"UPSTREAM_UNAVAILABLE": {
		English: "An external service is unavailable, please try again",
		Russian: "Внешний сервис недоступен, попробуйте ещё раз",
		Uzbek:   "Tashqi xizmat mavjud emas, qayta urinib ko'ring",
	},
	"BUSY": {
		English: "The server is busy, please retry",
		Russian: "Сервер занят, повторите попытку",
		Uzbek:   "Server band, qayta urinib ko'ring",
	},
	"INTERNAL": {
		English: "Internal server error",
		Russian: "Внутренняя ошибка сервера",
		Uzbek:   "Serverning ichki xatosi",
	},
}

// Message returns the localized message for code, or fallback when the code is unknown
func Message(lang Lang, code, fallback string) string {
	byLang, ok := messages[code]
	if !ok {
		return fallback
	}
	if msg, ok := byLang[lang]; ok {
		return msg
	}
	return byLang[English]
}
