package draft

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

var schemas = map[string]*Schema{}

func register(s *Schema) {
	schemas[s.Name] = s.indexed()
}

// accounting fields shared by every sub-item
func ledgerFields() []Field {
	return []Field{
		{Name: "compteComptableId", Label: "Le compte comptable", Kind: Ref},
		{Name: FieldCurrency, Label: "La devise", Kind: Ref, Required: true},
	}
}

func fields(own ...Field) []Field {
	return append(own, ledgerFields()...)
}

// setProduct writes a*b/scale rounded to cents into dst when both inputs
// parse. Otherwise dst is cleared only if the edit emptied a or b.
func setProduct(values map[string]string, changed, dst, a, b string, scale decimal.Decimal) {
	x, okA := parseDecimal(values[a])
	y, okB := parseDecimal(values[b])
	if !okA || !okB {
		clearIfInput(values, changed, dst, a, b)
		return
	}
	values[dst] = x.Mul(y).Div(scale).StringFixed(2)
}

// clearIfInput clears dst when changed is one of inputs and no longer parses
func clearIfInput(values map[string]string, changed, dst string, inputs ...string) {
	if _, ok := parseDecimal(values[changed]); ok {
		return
	}
	for _, in := range inputs {
		if changed == in {
			values[dst] = ""
			return
		}
	}
}

func requireWhen(field, equals, target, msg string) Rule {
	return func(d Draft) string {
		if d.Get(field) == equals && d.Get(target) == "" {
			return msg
		}
		return ""
	}
}

func init() {
	register(&Schema{
		Name: "charge_sociale",
		Fields: fields(
			Field{Name: "organisme", Label: "L'organisme", Kind: Choice, Default: "caisse_sociale", Required: true,
				Choices: []string{"caisse_sociale", "cnss", "mutuelle", "retraite_complementaire", "assurance_maladie", "autre"}},
			Field{Name: "libelle", Label: "Le libellé", Kind: Text, Required: true},
			Field{Name: "employeId", Label: "L'employé", Kind: Ref},
			Field{Name: "periode", Label: "La période", Kind: Text},
			Field{Name: "modeCalcul", Label: "Le mode de calcul", Kind: Choice, Default: "montant_fixe", Required: true,
				Choices: []string{"montant_fixe", "taux"}},
			Field{Name: "baseCalcul", Label: "La base de calcul", Kind: Amount},
			Field{Name: "taux", Label: "Le taux", Kind: Percent},
			Field{Name: "montant", Label: "Le montant", Kind: Amount, Required: true},
			Field{Name: "dateEcheance", Label: "La date d'échéance", Kind: Date},
			Field{Name: "recurrent", Label: "Récurrent", Kind: Bool, Default: "true"},
			Field{Name: "actif", Label: "Actif", Kind: Bool, Default: "true"},
			Field{Name: "statut", Label: "Le statut", Kind: Choice, Default: "brouillon",
				Choices: []string{"brouillon", "valide", "paye"}},
		),
		Cascades: []Cascade{
			{Field: "modeCalcul", KeepWhen: "taux", Clears: []string{"baseCalcul", "taux"}},
		},
		Rules: []Rule{
			requireWhen("modeCalcul", "taux", "baseCalcul", "La base de calcul est requise pour un calcul par taux"),
			requireWhen("modeCalcul", "taux", "taux", "Le taux est requis pour un calcul par taux"),
		},
		Derive: func(v map[string]string, changed string) {
			if v["modeCalcul"] == "taux" {
				setProduct(v, changed, "montant", "baseCalcul", "taux", hundred)
			}
		},
		AmountField: "montant",
	})

	register(&Schema{
		Name: "autre",
		Fields: fields(
			Field{Name: "libelle", Label: "Le libellé", Kind: Text, Required: true},
			Field{Name: "beneficiaire", Label: "Le bénéficiaire", Kind: Text, Required: true},
			Field{Name: "tiersId", Label: "Le tiers", Kind: Ref},
			Field{Name: "montant", Label: "Le montant", Kind: Amount, Required: true},
			Field{Name: "datePaiement", Label: "La date de paiement", Kind: Date},
			Field{Name: "reference", Label: "La référence", Kind: Text},
			Field{Name: "typeCommission", Label: "Le type de commission", Kind: Choice, Default: "aucune",
				Choices: []string{"aucune", "fixe", "pourcentage"}},
			Field{Name: "montantCommission", Label: "Le montant de la commission", Kind: Amount},
			Field{Name: "tauxCommission", Label: "Le taux de commission", Kind: Percent},
		),
		Cascades: []Cascade{
			{Field: "typeCommission", KeepWhen: "pourcentage", Clears: []string{"tauxCommission"}},
			{Field: "typeCommission", KeepWhen: "fixe", Clears: []string{"montantCommission"}},
		},
		Rules: []Rule{
			requireWhen("typeCommission", "pourcentage", "tauxCommission",
				"Le taux de commission est requis pour une commission en pourcentage"),
			requireWhen("typeCommission", "fixe", "montantCommission",
				"Le montant de la commission est requis pour une commission fixe"),
		},
		AmountField: "montant",
	})

	register(&Schema{
		Name: "avance_salaire",
		Fields: fields(
			Field{Name: "employeId", Label: "L'employé", Kind: Ref, Required: true},
			Field{Name: "montant", Label: "Le montant", Kind: Amount, Required: true},
			Field{Name: "dateAvance", Label: "La date de l'avance", Kind: Date, Required: true},
			Field{Name: "nombreMensualites", Label: "Le nombre de mensualités", Kind: Integer, Default: "1", Required: true},
			Field{Name: "montantMensualite", Label: "La mensualité", Kind: Amount},
			Field{Name: "motif", Label: "Le motif", Kind: Text},
			Field{Name: "statut", Label: "Le statut", Kind: Choice, Default: "brouillon",
				Choices: []string{"brouillon", "valide", "rembourse"}},
		),
		Rules: []Rule{
			func(d Draft) string {
				n, ok := parseDecimal(d.Get("nombreMensualites"))
				if ok && n.LessThan(decimal.NewFromInt(1)) {
					return "Le nombre de mensualités doit être au moins 1"
				}
				return ""
			},
		},
		Derive: func(v map[string]string, changed string) {
			total, okT := parseDecimal(v["montant"])
			n, okN := parseDecimal(v["nombreMensualites"])
			if okT && okN && n.IsPositive() {
				v["montantMensualite"] = total.Div(n).StringFixed(2)
				return
			}
			clearIfInput(v, changed, "montantMensualite", "montant", "nombreMensualites")
		},
		AmountField: "montant",
	})

	register(&Schema{
		Name: "impot_taxe",
		Fields: fields(
			Field{Name: "typeImpot", Label: "Le type d'impôt", Kind: Choice, Default: "tva", Required: true,
				Choices: []string{"tva", "is", "irpp", "patente", "taxe_fonciere", "retenue_source", "autre"}},
			Field{Name: "libelle", Label: "Le libellé", Kind: Text},
			Field{Name: "periode", Label: "La période", Kind: Text, Required: true},
			Field{Name: "baseImposable", Label: "La base imposable", Kind: Amount},
			Field{Name: "taux", Label: "Le taux", Kind: Percent},
			Field{Name: "montant", Label: "Le montant", Kind: Amount, Required: true},
			Field{Name: "dateEcheance", Label: "La date d'échéance", Kind: Date},
			Field{Name: "reference", Label: "La référence", Kind: Text},
		),
		Derive: func(v map[string]string, changed string) {
			setProduct(v, changed, "montant", "baseImposable", "taux", hundred)
		},
		AmountField: "montant",
	})

	register(&Schema{
		Name: "note_frais",
		Fields: fields(
			Field{Name: "employeId", Label: "L'employé", Kind: Ref, Required: true},
			Field{Name: "dateDepense", Label: "La date de la dépense", Kind: Date, Required: true},
			Field{Name: "categorie", Label: "La catégorie", Kind: Choice, Default: "autre", Required: true,
				Choices: []string{"transport", "hebergement", "restauration", "fournitures", "autre"}},
			Field{Name: "description", Label: "La description", Kind: Text},
			Field{Name: "montantHt", Label: "Le montant HT", Kind: Amount, Required: true},
			Field{Name: "tauxTva", Label: "Le taux de TVA", Kind: Percent, Default: "0"},
			Field{Name: "montantTtc", Label: "Le montant TTC", Kind: Amount},
			Field{Name: "justificatif", Label: "Le justificatif", Kind: Text},
		),
		Derive: func(v map[string]string, changed string) {
			ht, okH := parseDecimal(v["montantHt"])
			rate, okR := parseDecimal(v["tauxTva"])
			if !okH {
				clearIfInput(v, changed, "montantTtc", "montantHt")
				return
			}
			if !okR {
				rate = decimal.Zero
			}
			v["montantTtc"] = ht.Add(ht.Mul(rate).Div(hundred)).StringFixed(2)
		},
		AmountField: "montantTtc",
	})

	register(&Schema{
		Name: "paie",
		Fields: fields(
			Field{Name: "periode", Label: "La période", Kind: Text, Required: true},
			Field{Name: "nombreEmployes", Label: "Le nombre d'employés", Kind: Integer},
			Field{Name: "salaireBrut", Label: "Le salaire brut", Kind: Amount, Required: true},
			Field{Name: "cotisationsSalariales", Label: "Les cotisations salariales", Kind: Amount, Default: "0"},
			Field{Name: "cotisationsPatronales", Label: "Les cotisations patronales", Kind: Amount, Default: "0"},
			Field{Name: "salaireNet", Label: "Le salaire net", Kind: Amount},
		),
		Rules: []Rule{
			func(d Draft) string {
				gross, okG := parseDecimal(d.Get("salaireBrut"))
				withheld, okW := parseDecimal(d.Get("cotisationsSalariales"))
				if okG && okW && withheld.GreaterThan(gross) {
					return "Les cotisations salariales ne peuvent pas dépasser le salaire brut"
				}
				return ""
			},
		},
		Derive: func(v map[string]string, changed string) {
			gross, okG := parseDecimal(v["salaireBrut"])
			if !okG {
				clearIfInput(v, changed, "salaireNet", "salaireBrut")
				return
			}
			withheld, okW := parseDecimal(v["cotisationsSalariales"])
			if !okW {
				withheld = decimal.Zero
			}
			v["salaireNet"] = gross.Sub(withheld).StringFixed(2)
		},
		AmountField: "salaireNet",
	})

	register(&Schema{
		Name: "per_diem",
		Fields: fields(
			Field{Name: "beneficiaire", Label: "Le bénéficiaire", Kind: Text, Required: true},
			Field{Name: "destination", Label: "La destination", Kind: Text, Required: true},
			Field{Name: "motif", Label: "Le motif", Kind: Text},
			Field{Name: "dateDebut", Label: "La date de début", Kind: Date, Required: true},
			Field{Name: "dateFin", Label: "La date de fin", Kind: Date, Required: true},
			Field{Name: "nombreJours", Label: "Le nombre de jours", Kind: Integer, Required: true},
			Field{Name: "tauxJournalier", Label: "Le taux journalier", Kind: Amount, Required: true},
			Field{Name: "montant", Label: "Le montant", Kind: Amount},
		),
		Rules: []Rule{
			func(d Draft) string {
				from, err1 := time.Parse(dateLayout, d.Get("dateDebut"))
				to, err2 := time.Parse(dateLayout, d.Get("dateFin"))
				if err1 == nil && err2 == nil && to.Before(from) {
					return "La date de fin doit être postérieure à la date de début"
				}
				return ""
			},
		},
		Derive: func(v map[string]string, changed string) {
			setProduct(v, changed, "montant", "nombreJours", "tauxJournalier", decimal.NewFromInt(1))
		},
		AmountField: "montant",
	})
}
