package query

// Vocabulary is matched against folded text, so entries are written without accents.
var (
	todayWords    = []string{"hoy", "today", "tonight", "esta noche", "esta manana", "this morning"}
	tomorrowWords = []string{"manana", "tomorrow"}
	// "manana" also means "morning"; these phrases use it that way.
	morningPhrases = []string{"esta manana", "por la manana", "en la manana", "de la manana"}
	weekWords      = []string{"esta semana", "this week", "semana", "week"}

	pendingWords = []string{
		"pendiente", "pendientes", "por hacer", "sin hacer", "sin completar", "incompleta", "incompletas",
		"falta", "faltan", "pending", "to do", "incomplete", "unfinished", "open",
	}
	completedWords = []string{
		"completada", "completadas", "completado", "completados", "terminada", "terminadas", "hecha",
		"hechas", "finalizada", "finalizadas", "completed", "done", "finished",
	}

	possessiveWords = []string{
		"mi", "mis", "tengo", "para mi", "me asignaron", "me toca", "me tocan", "asignadas a mi",
		"asignada a mi", "my", "mine", "i have", "assigned to me",
	}

	identitySelfPhrases = []string{
		"quien soy", "quien soy yo", "mi usuario", "mi correo", "mi email", "mi rol", "mi perfil",
		"mis datos", "mi nombre", "mi cuenta", "who am i", "my user", "my email", "my role",
		"my profile", "my account", "my name",
	}
	identityGenericWords = []string{
		"usuario", "usuarios", "miembro", "miembros", "rol", "roles", "integrantes",
		"user", "users", "member", "members", "role",
	}

	taskWords = []string{
		"tarea", "tareas", "quehacer", "quehaceres", "pendiente", "pendientes",
		"task", "tasks", "chore", "chores", "to do", "assigned", "asignada", "asignadas",
	}
	peopleWords = []string{
		"usuario", "usuarios", "miembro", "miembros", "familia", "familiar", "rol", "roles",
		"correo", "perfil", "quien soy", "persona", "personas",
		"user", "users", "member", "members", "role", "email", "profile", "who am i", "people",
	}
	moneyWords = []string{
		"gasto", "gastos", "presupuesto", "pago", "pagos", "dinero", "finanzas", "factura", "facturas",
		"expense", "expenses", "budget", "payment", "payments", "money", "finance", "bill", "bills",
	}
)

func (t Text) MentionsToday() bool    { return t.HasAny(todayWords...) }
func (t Text) MentionsTomorrow() bool { return t.without(morningPhrases...).HasAny(tomorrowWords...) }
func (t Text) MentionsWeek() bool     { return t.HasAny(weekWords...) }
func (t Text) WantsPending() bool     { return t.HasAny(pendingWords...) }
func (t Text) WantsCompleted() bool   { return t.HasAny(completedWords...) }
func (t Text) IsPossessive() bool     { return t.HasAny(possessiveWords...) }
func (t Text) MentionsTasks() bool    { return t.HasAny(taskWords...) }
func (t Text) MentionsPeople() bool   { return t.HasAny(peopleWords...) }
func (t Text) MentionsMoney() bool    { return t.HasAny(moneyWords...) }

// IsSelfReference reports whether the caller asks about themselves ("who am I", "my email").
func (t Text) IsSelfReference() bool { return t.HasAny(identitySelfPhrases...) }

// IsIdentityIntent reports whether the message is about users rather than tasks. Generic user
// vocabulary only counts when the message does not also talk about tasks.
func (t Text) IsIdentityIntent() bool {
	if t.IsSelfReference() {
		return true
	}
	return t.HasAny(identityGenericWords...) && !t.MentionsTasks()
}
