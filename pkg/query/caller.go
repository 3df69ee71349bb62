package query

import (
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

var (
	headOfHouseholdPhrases = []string{
		"soy jefe de familia", "soy jefa de familia", "soy el jefe del hogar", "soy la jefa del hogar",
		"jefe de hogar", "jefa de hogar", "soy cabeza de familia",
		"i am the head of household", "i m the head of household", "head of household",
	}
	familyMemberPhrases = []string{
		"soy miembro de la familia", "soy un miembro", "soy miembro", "soy familiar",
		"i am a family member", "i m a family member", "family member",
	}
)

// InferCaller fills the role and email of c from the message text when the request did not carry
// them. Explicit values are never overwritten.
func InferCaller(message string, c Caller) Caller {
	if c.Email == "" {
		if m := emailPattern.FindString(message); m != "" {
			c.Email = strings.ToLower(m)
		}
	}
	if c.Role == "" {
		text := Fold(message)
		switch {
		case text.HasAny(headOfHouseholdPhrases...):
			c.Role = RoleHeadOfHousehold
		case text.HasAny(familyMemberPhrases...):
			c.Role = RoleFamilyMember
		}
	}
	return c
}
