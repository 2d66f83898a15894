package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message/catalog"
)

// 消息 key
const (
	ErrInvalidInput       = "error.invalid_input"
	ErrUnauthorized       = "error.unauthorized"
	ErrForbidden          = "error.forbidden"
	ErrNotFound           = "error.not_found"
	ErrConflict           = "error.conflict"
	ErrPolicyDenied       = "error.policy_denied"
	ErrInvalidCredentials = "error.invalid_credentials"
	ErrTooLarge           = "error.too_large"
	ErrUnsupportedType    = "error.unsupported_type"
	ErrInternal           = "error.internal"

	NotifyMentionTitle    = "notification.mention.title"
	NotifyAssignmentTitle = "notification.assignment.title"
	NotifyAssignmentBody  = "notification.assignment.body"
	NotifyStatusTitle     = "notification.status.title"
	NotifyDueSoonTitle    = "notification.due_soon.title"
	NotifyDueSoonBody     = "notification.due_soon.body"

	VoiceGreeting       = "voice.greeting"
	VoiceClarify        = "voice.clarify"
	VoiceUnavailable    = "voice.unavailable"
	VoiceDenied         = "voice.denied"
	VoiceTaskCreated    = "voice.task_created"
	VoiceStatusUpdated  = "voice.status_updated"
	VoiceTasksListed    = "voice.tasks_listed"
	VoiceTimeLogged     = "voice.time_logged"
	VoiceProjectCreated = "voice.project_created"
	VoiceNoProject      = "voice.no_project"
	VoiceTaskNotFound   = "voice.task_not_found"
)

var (
	English = language.English
	Spanish = language.Spanish
	French  = language.French
	German  = language.German

	// Supported 第一个为默认语言
	Supported = []language.Tag{English, Spanish, French, German}
)

var messages = map[string]map[language.Tag]string{
	ErrInvalidInput: {
		English: "Invalid input",
		Spanish: "Entrada no válida",
		French:  "Entrée invalide",
		German:  "Ungültige Eingabe",
	},
	ErrUnauthorized: {
		English: "Authentication required",
		Spanish: "Se requiere autenticación",
		French:  "Authentification requise",
		German:  "Anmeldung erforderlich",
	},
	ErrForbidden: {
		English: "You do not have permission to perform this action",
		Spanish: "No tienes permiso para realizar esta acción",
		French:  "Vous n'avez pas la permission d'effectuer cette action",
		German:  "Sie haben keine Berechtigung für diese Aktion",
	},
	ErrNotFound: {
		English: "Resource not found",
		Spanish: "Recurso no encontrado",
		French:  "Ressource introuvable",
		German:  "Ressource nicht gefunden",
	},
	ErrConflict: {
		English: "The request conflicts with the current state",
		Spanish: "La solicitud entra en conflicto con el estado actual",
		French:  "La requête est en conflit avec l'état actuel",
		German:  "Die Anfrage steht im Konflikt mit dem aktuellen Zustand",
	},
	ErrPolicyDenied: {
		English: "The AI policy of this workspace does not allow this action",
		Spanish: "La política de IA de este espacio de trabajo no permite esta acción",
		French:  "La politique IA de cet espace de travail n'autorise pas cette action",
		German:  "Die KI-Richtlinie dieses Arbeitsbereichs erlaubt diese Aktion nicht",
	},
	ErrInvalidCredentials: {
		English: "Invalid email or password",
		Spanish: "Correo o contraseña no válidos",
		French:  "E-mail ou mot de passe invalide",
		German:  "Ungültige E-Mail-Adresse oder ungültiges Passwort",
	},
	ErrTooLarge: {
		English: "File exceeds the maximum size of %d MB",
		Spanish: "El archivo supera el tamaño máximo de %d MB",
		French:  "Le fichier dépasse la taille maximale de %d Mo",
		German:  "Die Datei überschreitet die maximale Größe von %d MB",
	},
	ErrUnsupportedType: {
		English: "File type %s is not allowed",
		Spanish: "El tipo de archivo %s no está permitido",
		French:  "Le type de fichier %s n'est pas autorisé",
		German:  "Der Dateityp %s ist nicht erlaubt",
	},
	ErrInternal: {
		English: "Something went wrong, please try again",
		Spanish: "Algo salió mal, inténtalo de nuevo",
		French:  "Une erreur s'est produite, veuillez réessayer",
		German:  "Etwas ist schiefgelaufen, bitte versuchen Sie es erneut",
	},
	NotifyMentionTitle: {
		English: "%s mentioned you",
		Spanish: "%s te mencionó",
		French:  "%s vous a mentionné",
		German:  "%s hat Sie erwähnt",
	},
	NotifyAssignmentTitle: {
		English: "New task assigned to you",
		Spanish: "Se te asignó una nueva tarea",
		French:  "Une nouvelle tâche vous a été assignée",
		German:  "Ihnen wurde eine neue Aufgabe zugewiesen",
	},
	NotifyAssignmentBody: {
		English: "You are now responsible for \"%s\"",
		Spanish: "Ahora eres responsable de \"%s\"",
		French:  "Vous êtes maintenant responsable de « %s »",
		German:  "Sie sind jetzt verantwortlich für „%s“",
	},
	NotifyStatusTitle: {
		English: "\"%s\" moved to %s",
		Spanish: "\"%s\" pasó a %s",
		French:  "« %s » est passé à %s",
		German:  "„%s“ wurde nach %s verschoben",
	},
	NotifyDueSoonTitle: {
		English: "\"%s\" is due soon",
		Spanish: "\"%s\" vence pronto",
		French:  "« %s » arrive bientôt à échéance",
		German:  "„%s“ ist bald fällig",
	},
	NotifyDueSoonBody: {
		English: "Due on %s",
		Spanish: "Vence el %s",
		French:  "Échéance le %s",
		German:  "Fällig am %s",
	},
	VoiceGreeting: {
		English: "Hi! Tell me what you need, for example \"create a task to review the budget\".",
		Spanish: "¡Hola! Dime qué necesitas, por ejemplo \"crea una tarea para revisar el presupuesto\".",
		French:  "Bonjour ! Dites-moi ce dont vous avez besoin, par exemple « crée une tâche pour revoir le budget ».",
		German:  "Hallo! Sagen Sie mir, was Sie brauchen, zum Beispiel „erstelle eine Aufgabe, um das Budget zu prüfen“.",
	},
	VoiceClarify: {
		English: "Sorry, I did not quite get that. Could you rephrase it?",
		Spanish: "Lo siento, no lo entendí bien. ¿Puedes reformularlo?",
		French:  "Désolé, je n'ai pas bien compris. Pouvez-vous reformuler ?",
		German:  "Entschuldigung, das habe ich nicht ganz verstanden. Können Sie es anders formulieren?",
	},
	VoiceUnavailable: {
		English: "The assistant is unavailable right now. Please try again in a moment.",
		Spanish: "El asistente no está disponible ahora. Inténtalo de nuevo en un momento.",
		French:  "L'assistant est indisponible pour le moment. Réessayez dans un instant.",
		German:  "Der Assistent ist gerade nicht verfügbar. Bitte versuchen Sie es gleich noch einmal.",
	},
	VoiceDenied: {
		English: "Your workspace AI policy does not allow %s.",
		Spanish: "La política de IA de tu espacio de trabajo no permite %s.",
		French:  "La politique IA de votre espace de travail n'autorise pas %s.",
		German:  "Die KI-Richtlinie Ihres Arbeitsbereichs erlaubt %s nicht.",
	},
	VoiceTaskCreated: {
		English: "Created task \"%s\".",
		Spanish: "Tarea \"%s\" creada.",
		French:  "Tâche « %s » créée.",
		German:  "Aufgabe „%s“ erstellt.",
	},
	VoiceStatusUpdated: {
		English: "Moved \"%s\" to %s.",
		Spanish: "\"%s\" movida a %s.",
		French:  "« %s » déplacée vers %s.",
		German:  "„%s“ nach %s verschoben.",
	},
	VoiceTasksListed: {
		English: "I found %d tasks.",
		Spanish: "Encontré %d tareas.",
		French:  "J'ai trouvé %d tâches.",
		German:  "Ich habe %d Aufgaben gefunden.",
	},
	VoiceTimeLogged: {
		English: "Logged %s.",
		Spanish: "Registrado %s.",
		French:  "%s enregistré.",
		German:  "%s erfasst.",
	},
	VoiceProjectCreated: {
		English: "Created project \"%s\".",
		Spanish: "Proyecto \"%s\" creado.",
		French:  "Projet « %s » créé.",
		German:  "Projekt „%s“ erstellt.",
	},
	VoiceNoProject: {
		English: "Which project should I use?",
		Spanish: "¿Qué proyecto debo usar?",
		French:  "Quel projet dois-je utiliser ?",
		German:  "Welches Projekt soll ich verwenden?",
	},
	VoiceTaskNotFound: {
		English: "I could not find a task matching \"%s\".",
		Spanish: "No encontré ninguna tarea que coincida con \"%s\".",
		French:  "Je n'ai trouvé aucune tâche correspondant à « %s ».",
		German:  "Ich habe keine Aufgabe gefunden, die zu „%s“ passt.",
	},
}

func newCatalog() (*catalog.Builder, error) {
	b := catalog.NewBuilder(catalog.Fallback(English))
	for key, byLang := range messages {
		for tag, msg := range byLang {
			if err := b.SetString(tag, key, msg); err != nil {
				return nil, err
			}
		}
	}
	return b, nil
}
