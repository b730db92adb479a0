package domain

// ChatKind — тип чата на платформе.
type ChatKind string

const (
	ChatKindPrivate    ChatKind = "private"
	ChatKindGroup      ChatKind = "group"
	ChatKindSupergroup ChatKind = "supergroup"
	ChatKindChannel    ChatKind = "channel"
)

// IsGroupLike сообщает, может ли чат такого типа быть назначением.
func (k ChatKind) IsGroupLike() bool {
	return k == ChatKindGroup || k == ChatKindSupergroup
}

// MemberStatus — статус бота в чате.
type MemberStatus string

const (
	MemberStatusCreator       MemberStatus = "creator"
	MemberStatusAdministrator MemberStatus = "administrator"
	MemberStatusMember        MemberStatus = "member"
	MemberStatusRestricted    MemberStatus = "restricted"
	MemberStatusLeft          MemberStatus = "left"
	MemberStatusKicked        MemberStatus = "kicked"
)

// IsActive сообщает, является ли статус действующим членством.
func (s MemberStatus) IsActive() bool {
	switch s {
	case MemberStatusMember, MemberStatusAdministrator, MemberStatusCreator:
		return true
	default:
		return false
	}
}

// IsRemoval сообщает, означает ли статус удаление бота из чата.
func (s MemberStatus) IsRemoval() bool {
	return s == MemberStatusKicked || s == MemberStatusLeft
}

// ChatInfo — ответ проверки живого членства в чате.
type ChatInfo struct {
	Status MemberStatus
	Kind   ChatKind
	Title  string
}

// ProbeResult — итог проверки одного чата при полной сверке.
// Err заполнен, если сам запрос к платформе не удался.
type ProbeResult struct {
	ChatID string
	Info   ChatInfo
	Err    error
}
