package utils

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// SupportedLanguages is ordered by preference; the first one is the fallback
var SupportedLanguages = []language.Tag{language.English, language.French, language.Spanish}

var matcher = language.NewMatcher(SupportedLanguages)

// Player-facing messages. Keys are the English text.
var translations = map[string]map[language.Tag]string{
	"invalid move": {
		language.French:  "coup invalide",
		language.Spanish: "jugada no válida",
	},
	"match is not accepting this action in its current state": {
		language.French:  "la partie n'accepte pas cette action dans son état actuel",
		language.Spanish: "la partida no acepta esta acción en su estado actual",
	},
	"caller is not a player in this match": {
		language.French:  "vous ne jouez pas dans cette partie",
		language.Spanish: "no eres jugador de esta partida",
	},
	"move already submitted for this round": {
		language.French:  "coup déjà joué pour cette manche",
		language.Spanish: "ya has jugado en esta ronda",
	},
	"match not found": {
		language.French:  "partie introuvable",
		language.Spanish: "partida no encontrada",
	},
	"offer not found": {
		language.French:  "offre introuvable",
		language.Spanish: "oferta no encontrada",
	},
	"offer is no longer open": {
		language.French:  "l'offre n'est plus disponible",
		language.Spanish: "la oferta ya no está disponible",
	},
	"cannot join your own offer": {
		language.French:  "vous ne pouvez pas rejoindre votre propre offre",
		language.Spanish: "no puedes unirte a tu propia oferta",
	},
	"player is not eligible to play": {
		language.French:  "vous n'êtes pas autorisé à jouer",
		language.Spanish: "no puedes jugar",
	},
	"stake amount out of range": {
		language.French:  "montant de la mise hors limites",
		language.Spanish: "importe de la apuesta fuera de rango",
	},
	"unknown game type": {
		language.French:  "type de jeu inconnu",
		language.Spanish: "tipo de juego desconocido",
	},
	"invalid request": {
		language.French:  "requête invalide",
		language.Spanish: "solicitud no válida",
	},
	"settlement failed": {
		language.French:  "le règlement a échoué",
		language.Spanish: "la liquidación ha fallado",
	},
	"internal error": {
		language.French:  "erreur interne",
		language.Spanish: "error interno",
	},
	"voided, stakes refunded": {
		language.French:  "annulée, mises remboursées",
		language.Spanish: "anulada, apuestas reembolsadas",
	},
	"expired, stake refunded": {
		language.French:  "expirée, mise remboursée",
		language.Spanish: "caducada, apuesta reembolsada",
	},
	"Must complete KYC verification to play": {
		language.French:  "Vérification KYC requise pour jouer",
		language.Spanish: "Debes completar la verificación KYC para jugar",
	},
	"Gaming not available in %s": {
		language.French:  "Jeu non disponible en %s",
		language.Spanish: "Juego no disponible en %s",
	},
	"Players must be 18 or older": {
		language.French:  "Les joueurs doivent avoir 18 ans ou plus",
		language.Spanish: "Los jugadores deben tener 18 años o más",
	},
	"Account suspended": {
		language.French:  "Compte suspendu",
		language.Spanish: "Cuenta suspendida",
	},
}

func init() {
	for key, byLang := range translations {
		if err := message.SetString(language.English, key, key); err != nil {
			panic(err)
		}
		for tag, text := range byLang {
			if err := message.SetString(tag, key, text); err != nil {
				panic(err)
			}
		}
	}
}

// MatchLanguage picks the supported language closest to an Accept-Language
// header or a stored preference such as "fr".
func MatchLanguage(preferences ...string) language.Tag {
	var tags []language.Tag
	for _, p := range preferences {
		if p == "" {
			continue
		}
		parsed, _, err := language.ParseAcceptLanguage(p)
		if err != nil {
			continue
		}
		tags = append(tags, parsed...)
	}
	_, idx, _ := matcher.Match(tags...)
	return SupportedLanguages[idx]
}

// Localize renders a message key in the given language, falling back to English
func Localize(tag language.Tag, key string, args ...interface{}) string {
	return message.NewPrinter(tag).Sprintf(key, args...)
}
