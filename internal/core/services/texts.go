package services

// User-facing copy. The bot talks to its users in Russian.
const (
	textGreeting = "Привет! 👋\n" + textGreetingBody

	textHelp = "Я могу ответить на часто задаваемые вопросы по учебному процессу, помочь с выбором курса под ваши задачи и цели, а также помочь в решении организационных вопросов."

	textAnswerFailed = "Произошла ошибка при обработке вашего запроса. Попробуйте, пожалуйста, ещё раз чуть позже."

	textRatingPrompt      = "Пожалуйста, оцените мой ответ от 1 до 5 звезд:"
	textAdHocRatingPrompt = "Пожалуйста, оцените качество ответов бота от 1 до 5 звезд:"
	textRatingSkipped     = "Спасибо! Вы можете оценить ответ позже."
	textRatingLowFormat   = "Спасибо за вашу оценку (%d/5)! Хотели бы вы оставить комментарий, чтобы мы могли улучшить наш сервис?"
	textRatingHighFormat  = "Спасибо за вашу высокую оценку (%d/5)! Мы рады, что смогли вам помочь."
	textFeedbackDeclined  = "Спасибо за вашу оценку! Будем рады помочь вам снова."
	textFeedbackRequest   = "Пожалуйста, напишите ваш отзыв в следующем сообщении:"
	textFeedbackThanks    = "Спасибо за ваш отзыв! Мы обязательно учтем его для улучшения нашего сервиса."

	textOnboardingCountry = `Добро пожаловать! Чтобы я мог лучше помогать вам, ответьте, пожалуйста, на несколько вопросов.

Из какой вы страны?`
	textOnboardingInterests = "Какие темы вас интересуют? Выберите из списка или пропустите этот шаг."
	textOnboardingSubject   = "Какой предмет вы преподаете?"
	textOnboardingDone      = "Спасибо за информацию! Теперь я смогу лучше помогать вам.\n\n" + textGreetingBody
	textOnboardingHint      = "Ответьте одним из вариантов или своими словами. Чтобы пропустить вопрос, напишите «Пропустить»."

	textGreetingBody = "Я нейроассистент и готов ответить на любой ваш вопрос. " +
		"Сейчас я работаю в тестовом режиме, не злитесь на меня, пожалуйста, если я не смогу ответить. Обещаю, что исправлюсь🤗\n\n" +
		"❗️ Что я умею?\n" +
		"- Ответить на часто задаваемые вопросы по учебному процессу.\n" +
		"- Помочь с выбором курса под ваши задачи и цели.\n" +
		"- Помочь в решении организационных вопросов."

	textManagerFallbackFormat = "❌ Ошибка при отправке сообщения в группу менеджеров: %v\n\nПроверьте настройки бота и группы."

	skipAnswer = "Пропустить"
)

// Profile placeholders used in lead notifications
const (
	placeholderUsername  = "Нет username"
	placeholderCountry   = "Не указана"
	placeholderSubject   = "Не указан"
	placeholderInterests = "Не указаны"
)

var (
	countryOptions = []string{
		"Беларусь🇧🇾", "Россия🇷🇺", "Украина🇺🇦",
		"Казахстан🇰🇿", "Страна Европы🇪🇺", "Другая страна🌍",
	}
	interestOptions = []string{
		"Нейросети", "блог учителя", "Canva и онлайн-сервисы для работы",
		"Налоги и правовые аспекты для юристов РБ", "Старт в онлайн",
		"Автоматизация и экономия времени", "Учебные материалы",
	}
	subjectOptions = []string{
		"Математика", "Русский язык", "Английский язык", "Информатика",
		"История", "Биология", "Физика", "Химия",
		"Белорусский язык", "Другой предмет",
	}
)
