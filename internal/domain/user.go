package domain

// TranslatorType is the funding tier a translator works in
type TranslatorType string

const (
	TranslatorProfessional TranslatorType = "professional"
	TranslatorRWS          TranslatorType = "rwstranslator"
	TranslatorVolunteer    TranslatorType = "volunteer"
)

// JobType maps the translator tier to the bookings it may take
func (t TranslatorType) JobType() JobType {
	switch t {
	case TranslatorProfessional:
		return JobTypePaid
	case TranslatorRWS:
		return JobTypeRWS
	default:
		return JobTypeUnpaid
	}
}

// TranslatorLevel is the qualification of a translator
type TranslatorLevel string

const (
	LevelCertified       TranslatorLevel = "Certified"
	LevelCertifiedLaw    TranslatorLevel = "Certified with specialisation in law"
	LevelCertifiedHealth TranslatorLevel = "Certified with specialisation in health care"
	LevelLayman          TranslatorLevel = "Layman"
	LevelReadCourses     TranslatorLevel = "Read Translation courses"
)

// Translator is a snapshot of a translator account and its preferences
type Translator struct {
	ID                 int64           `json:"id"`
	Email              string          `json:"email"`
	Name               string          `json:"name"`
	Mobile             string          `json:"mobile,omitempty"`
	RoleID             int64           `json:"role_id"`
	Active             bool            `json:"active"`
	Type               TranslatorType  `json:"translator_type"`
	Level              TranslatorLevel `json:"translator_level"`
	Gender             Gender          `json:"gender,omitempty"`
	Town               string          `json:"town,omitempty"`
	LanguageIDs        []int64         `json:"language_ids"`
	NotGetNotification bool            `json:"not_get_notification"`
	NotGetEmergency    bool            `json:"not_get_emergency"`
	NotGetNighttime    bool            `json:"not_get_nighttime"`
}

// Speaks reports whether the translator works with the language
func (t *Translator) Speaks(languageID int64) bool {
	for _, id := range t.LanguageIDs {
		if id == languageID {
			return true
		}
	}
	return false
}

// ConsumerType is the funding arrangement of a customer
type ConsumerType string

const (
	ConsumerPaid ConsumerType = "paid"
	ConsumerRWS  ConsumerType = "rwsconsumer"
	ConsumerNGO  ConsumerType = "ngo"
)

// JobType maps a customer arrangement to the job type of its bookings
func (c ConsumerType) JobType() JobType {
	switch c {
	case ConsumerRWS:
		return JobTypeRWS
	case ConsumerNGO:
		return JobTypeUnpaid
	default:
		return JobTypePaid
	}
}

// Customer is the owner of bookings
type Customer struct {
	ID                 int64        `json:"id"`
	Email              string       `json:"email"`
	Name               string       `json:"name"`
	Town               string       `json:"town,omitempty"`
	ConsumerType       ConsumerType `json:"consumer_type"`
	CustomerType       string       `json:"customer_type,omitempty"`
	NotGetNotification bool         `json:"not_get_notification"`
	NotGetNighttime    bool         `json:"not_get_nighttime"`
}

// Role is what an authenticated caller acts as
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleTranslator Role = "translator"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
	RoleSystem     Role = "system"
)

// Actor is the user on whose behalf an operation runs
type Actor struct {
	ID   int64
	Role Role
}

// SystemActor is used by scheduled sweeps
var SystemActor = Actor{Role: RoleSystem}

// IsAdmin reports whether the actor may use administrative paths
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin || a.Role == RoleSuperAdmin
}
