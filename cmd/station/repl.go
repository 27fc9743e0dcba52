package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"lotflow/internal/apierror"
	"lotflow/internal/archive"
	"lotflow/internal/client"
	"lotflow/internal/completion"
	"lotflow/internal/config"
	"lotflow/internal/document"
	"lotflow/internal/dto"
	"lotflow/internal/intake"
	"lotflow/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const help = `Commandes:
  etat                         état de l'API
  lots [active|finished|all]   lister les lots
  nouveau [nom]                saisir un nouveau lot (scanner les numéros)
  voir <lot>                   afficher un lot et ses équipements
  diag <n> <etat> <technicien> diagnostic de l'équipement n du lot affiché
                               (etat: recond | pieces | hs)
  renommer <nom>               renommer le lot affiché
  recupere                     marquer le lot affiché comme récupéré
  regenerer                    régénérer et archiver le PDF du lot affiché
  renvoyer                     renvoyer au serveur le PDF déjà archivé du lot affiché
  quitter
Saisie d'un lot: scanner ou taper un numéro puis Entrée, ou
  :manuel <serie>  :type <n|tous> <type>  :marque <n> <nom>  :modele <n> <nom>
  :sel <n>  :tous  :lot type=.. marque=.. modele=..  :suppr <n>
  :liste  :envoyer  :annuler`

var stateAliases = map[string]string{
	"recond": model.StateReconditionne,
	"pieces": model.StatePourPieces,
	"hs":     model.StateHS,
}

type station struct {
	api      *client.Client
	workflow *client.Workflow
	cfg      *config.StationConfig
	out      io.Writer
	log      zerolog.Logger

	current uuid.UUID
	items   []model.LotItem

	editor  *intake.Editor
	scanner *intake.ScanBuffer
	catalog []model.Marque
	lotName string
}

func (s *station) printf(format string, args ...interface{}) {
	fmt.Fprintf(s.out, format, args...)
}

// say prints an error the way the operator should read it.
func (s *station) say(err error) {
	switch {
	case errors.Is(err, apierror.ErrNotFound):
		s.printf("Introuvable: %v\n", err)
	case errors.Is(err, apierror.ErrConflict):
		s.printf("Attention: %v\n", err)
	case errors.Is(err, apierror.ErrValidation):
		s.printf("Saisie invalide: %v\n", err)
	case errors.Is(err, apierror.ErrUnauthorized):
		s.printf("Non autorisé: vérifiez LOTFLOW_USERNAME / LOTFLOW_PASSWORD\n")
	default:
		s.printf("Erreur: %v (réessayer)\n", err)
	}
}

func (s *station) run(ctx context.Context, in *bufio.Scanner) error {
	s.printf("%s\n> ", help)
	for in.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := in.Text()
		var err error
		if s.editor != nil {
			err = s.intakeLine(ctx, line)
		} else {
			var quit bool
			quit, err = s.command(ctx, line)
			if quit {
				return nil
			}
		}
		if err != nil {
			s.say(err)
		}
		if s.editor != nil {
			s.printf("[%d] ", len(s.editor.Items()))
		}
		s.printf("> ")
	}
	return in.Err()
}

func (s *station) command(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	args := fields[1:]
	switch fields[0] {
	case "aide", "help", "?":
		s.printf("%s\n", help)
	case "quitter", "quit", "q":
		return true, nil
	case "etat":
		s.printf("API %s\n", s.api.Health(ctx))
	case "lots":
		status := model.LotStatusActive
		if len(args) > 0 {
			status = model.LotStatus(args[0])
		}
		return false, s.listLots(ctx, status)
	case "nouveau":
		return false, s.startIntake(ctx, strings.Join(args, " "))
	case "voir":
		if len(args) != 1 {
			return false, fmt.Errorf("voir <lot>: %w", apierror.ErrValidation)
		}
		id, err := uuid.Parse(args[0])
		if err != nil {
			return false, fmt.Errorf("identifiant de lot invalide: %w", apierror.ErrValidation)
		}
		return false, s.show(ctx, id)
	case "diag":
		return false, s.diagnose(ctx, args)
	case "renommer":
		if s.current == uuid.Nil {
			return false, errNoLot
		}
		if _, err := s.api.RenameLot(ctx, s.current, strings.Join(args, " ")); err != nil {
			return false, err
		}
		return false, s.show(ctx, s.current)
	case "recupere":
		if s.current == uuid.Nil {
			return false, errNoLot
		}
		lot, err := s.api.RecoverLot(ctx, s.current)
		if err != nil {
			return false, err
		}
		if lot.RecoveredAt != nil {
			s.printf("Lot récupéré le %s\n", lot.RecoveredAt.Local().Format("02/01/2006 15:04"))
		}
	case "regenerer":
		if s.current == uuid.Nil {
			return false, errNoLot
		}
		out, err := s.workflow.Regenerate(ctx, s.current)
		s.reportArchive(out, err)
	case "renvoyer":
		if s.current == uuid.Nil {
			return false, errNoLot
		}
		return false, s.resend(ctx)
	default:
		s.printf("Commande inconnue %q, tapez aide\n", fields[0])
	}
	return false, nil
}

var errNoLot = fmt.Errorf("aucun lot affiché, utilisez voir <lot>: %w", apierror.ErrValidation)

func (s *station) listLots(ctx context.Context, status model.LotStatus) error {
	lots, err := s.api.ListLots(ctx, status)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNOM\tCRÉÉ\tTOTAL\tEN ATTENTE\tTERMINÉ")
	for _, l := range lots {
		finished := ""
		if l.FinishedAt != nil {
			finished = l.FinishedAt.Local().Format("02/01/2006")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", l.ID, l.DisplayName(),
			l.CreatedAt.Local().Format("02/01/2006"), l.Total, l.Pending, finished)
	}
	return tw.Flush()
}

func (s *station) show(ctx context.Context, id uuid.UUID) error {
	summary, items, err := s.api.GetLot(ctx, id)
	if err != nil {
		return err
	}
	s.current, s.items = id, items
	s.printf("%s  (%d équipements, %d en attente)\n", summary.DisplayName(), summary.Total, summary.Pending)
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "N°\tSÉRIE\tTYPE\tMARQUE\tMODÈLE\tÉTAT\tTECHNICIEN")
	for i, it := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", i+1, it.SerialNumber, document.TypeLabel(it.Type),
			it.MarqueName, it.ModeleName, it.State, it.Technician)
	}
	return tw.Flush()
}

func (s *station) diagnose(ctx context.Context, args []string) error {
	if s.current == uuid.Nil {
		return errNoLot
	}
	if len(args) < 3 {
		return fmt.Errorf("diag <n> <etat> <technicien>: %w", apierror.ErrValidation)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(s.items) {
		return fmt.Errorf("équipement %q hors du lot: %w", args[0], apierror.ErrValidation)
	}
	state, ok := stateAliases[strings.ToLower(args[1])]
	if !ok {
		return fmt.Errorf("état %q inconnu (recond, pieces, hs): %w", args[1], apierror.ErrValidation)
	}
	tech := strings.Join(args[2:], " ")

	res, err := s.workflow.EditItem(ctx, s.items[n-1].ID, dto.UpdateItemRequest{State: &state, Technician: &tech})
	if err != nil {
		return err
	}
	s.printf("%s: %s (%s)\n", res.Item.SerialNumber, res.Item.State, res.Item.Technician)
	if err := s.refresh(ctx); err != nil {
		return err
	}
	s.printSummary(res.Result)
	if res.Finished {
		s.printf("Lot terminé.\n")
		s.reportArchive(res.Archive, res.ArchiveErr)
	}
	return nil
}

func (s *station) refresh(ctx context.Context) error {
	_, items, err := s.api.GetLot(ctx, s.current)
	if err != nil {
		return err
	}
	s.items = items
	return nil
}

func (s *station) printSummary(r completion.Result) {
	counts := completion.Counts(s.items)
	parts := make([]string, 0, len(completion.StateOrder))
	for _, key := range completion.StateOrder {
		parts = append(parts, fmt.Sprintf("%s %d", completion.Label(string(key)), counts[key]))
	}
	s.printf("%d/%d diagnostiqués: %s\n", r.Total-r.Pending, r.Total, strings.Join(parts, ", "))
}

func (s *station) reportArchive(out *archive.Outcome, err error) {
	var uploadErr *archive.UploadError
	switch {
	case errors.Is(err, archive.ErrArchiveUnavailable):
		s.printf("PDF envoyé au serveur, archivage local indisponible.\n")
	case errors.As(err, &uploadErr):
		if uploadErr.Path != "" {
			s.printf("PDF archivé dans %s mais pas envoyé au serveur (renvoyer pour réessayer).\n", uploadErr.Path)
		} else {
			s.printf("PDF non envoyé au serveur: %v (regenerer pour réessayer)\n", uploadErr.Err)
		}
	case err != nil:
		s.printf("Archivage impossible: %v (regenerer pour réessayer)\n", err)
	case out != nil:
		s.printf("PDF archivé: %s\n", out.LocalPath)
	}
}

func (s *station) resend(ctx context.Context) error {
	pdfPath, err := s.workflow.RetryUpload(ctx, s.current)
	var local *archive.LocalError
	switch {
	case errors.As(err, &local):
		s.printf("Fichier archivé introuvable (%s), utilisez regenerer.\n", local.Path)
		return nil
	case err != nil:
		return err
	}
	s.printf("PDF envoyé au serveur: %s\n", pdfPath)
	return nil
}

// ── Intake ────────────────────────────────────────────────────────────────────

func (s *station) startIntake(ctx context.Context, name string) error {
	catalog, err := s.api.Catalog(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("catalogue indisponible, marques désactivées")
	}
	s.catalog = catalog
	s.editor = intake.NewEditor(catalog, "")
	s.scanner = intake.NewScanBuffer(s.cfg.MinScanLength, 0)
	s.lotName = name
	s.printf("Nouveau lot: scannez les équipements, :envoyer pour créer le lot.\n")
	return nil
}

func (s *station) intakeLine(ctx context.Context, line string) error {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, ":") {
		serial, ok := s.scanner.FeedLine(line, time.Now())
		if !ok {
			if trimmed != "" {
				return fmt.Errorf("lecture trop courte (%d caractères minimum): %w", s.scanner.MinLength, apierror.ErrValidation)
			}
			return nil
		}
		row, err := s.editor.Scan(serial)
		if err != nil {
			return err
		}
		s.printf("+ %d %s\n", row.ID, row.Serial)
		return nil
	}

	fields := strings.Fields(trimmed[1:])
	if len(fields) == 0 {
		return nil
	}
	args := fields[1:]
	switch fields[0] {
	case "manuel":
		if len(args) != 1 {
			return fmt.Errorf(":manuel <serie>: %w", apierror.ErrValidation)
		}
		row := s.editor.AddManual()
		if err := s.editor.SetSerial(row.ID, args[0]); err != nil {
			_ = s.editor.Remove(row.ID)
			return err
		}
	case "type":
		if len(args) != 2 {
			return fmt.Errorf(":type <n|tous> <type>: %w", apierror.ErrValidation)
		}
		if args[0] == "tous" {
			s.editor.SelectAll(true)
			_, err := s.editor.BulkApply(intake.BulkValues{Type: args[1]})
			s.editor.SelectAll(false)
			return err
		}
		id, err := rowID(args[0])
		if err != nil {
			return err
		}
		return s.editor.SetType(id, args[1])
	case "marque":
		id, name, err := rowAndName(args)
		if err != nil {
			return err
		}
		if name == "" {
			return s.editor.SetBrand(id, nil)
		}
		m, err := s.findMarque(name)
		if err != nil {
			return err
		}
		return s.editor.SetBrand(id, &m.ID)
	case "modele":
		id, name, err := rowAndName(args)
		if err != nil {
			return err
		}
		if name == "" {
			return s.editor.SetModel(id, nil)
		}
		opts, err := s.editor.ModelOptions(id)
		if err != nil {
			return err
		}
		for _, md := range opts {
			if strings.EqualFold(md.Name, name) {
				return s.editor.SetModel(id, &md.ID)
			}
		}
		return fmt.Errorf("modèle %q absent de la marque choisie: %w", name, apierror.ErrValidation)
	case "sel":
		if len(args) != 1 {
			return fmt.Errorf(":sel <n>: %w", apierror.ErrValidation)
		}
		id, err := rowID(args[0])
		if err != nil {
			return err
		}
		return s.editor.Toggle(id)
	case "tous":
		s.editor.SelectAll(true)
	case "lot":
		return s.bulk(args)
	case "suppr":
		if len(args) != 1 {
			return fmt.Errorf(":suppr <n>: %w", apierror.ErrValidation)
		}
		id, err := rowID(args[0])
		if err != nil {
			return err
		}
		return s.editor.Remove(id)
	case "liste":
		s.listRows()
	case "envoyer":
		return s.submit(ctx)
	case "annuler":
		s.editor, s.scanner = nil, nil
		s.printf("Saisie abandonnée.\n")
	default:
		s.printf("Commande de saisie inconnue %q\n", fields[0])
	}
	return nil
}

func (s *station) bulk(args []string) error {
	var v intake.BulkValues
	var modele string
	for _, a := range args {
		key, val, ok := strings.Cut(a, "=")
		if !ok {
			return fmt.Errorf("%q: attendu cle=valeur: %w", a, apierror.ErrValidation)
		}
		val = strings.ReplaceAll(val, "_", " ")
		switch key {
		case "type":
			v.Type = val
		case "marque":
			m, err := s.findMarque(val)
			if err != nil {
				return err
			}
			v.MarqueID = &m.ID
		case "modele":
			modele = val
		}
	}
	if modele != "" {
		id, err := s.findModele(v.MarqueID, modele)
		if err != nil {
			return err
		}
		v.ModeleID = &id
	}
	n, err := s.editor.BulkApply(v)
	if err != nil {
		return err
	}
	s.printf("%d ligne(s) modifiée(s)\n", n)
	return nil
}

func (s *station) findMarque(name string) (model.Marque, error) {
	for _, m := range s.catalog {
		if strings.EqualFold(m.Name, name) {
			return m, nil
		}
	}
	return model.Marque{}, fmt.Errorf("marque %q: %w", name, intake.ErrUnknownMarque)
}

func (s *station) findModele(marqueID *uuid.UUID, name string) (uuid.UUID, error) {
	for _, m := range s.catalog {
		if marqueID != nil && m.ID != *marqueID {
			continue
		}
		for _, md := range m.Modeles {
			if strings.EqualFold(md.Name, name) {
				return md.ID, nil
			}
		}
	}
	return uuid.Nil, fmt.Errorf("modèle %q inconnu: %w", name, apierror.ErrNotFound)
}

func (s *station) listRows() {
	names := make(map[uuid.UUID]string)
	for _, m := range s.catalog {
		names[m.ID] = m.Name
		for _, md := range m.Modeles {
			names[md.ID] = md.Name
		}
	}
	name := func(id *uuid.UUID) string {
		if id == nil {
			return ""
		}
		return names[*id]
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, " \tN\tSÉRIE\tTYPE\tMARQUE\tMODÈLE\tSAISIE")
	for _, r := range s.editor.Rows() {
		mark := " "
		if r.Selected {
			mark = "x"
		}
		if r.ID == s.editor.Focus() {
			mark += ">"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n", mark, r.ID, r.Serial, r.Type, name(r.MarqueID), name(r.ModeleID), r.Entry)
	}
	_ = tw.Flush()
}

func (s *station) submit(ctx context.Context) error {
	req, err := s.editor.Request(s.lotName)
	if err != nil {
		return err
	}
	created, err := s.api.CreateLot(ctx, req)
	if err != nil {
		return err
	}
	s.printf("Lot créé: %s (%d équipements)\n", created.ID, created.Total)
	s.editor, s.scanner = nil, nil
	return s.show(ctx, created.ID)
}

func rowID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("ligne %q: %w", arg, apierror.ErrValidation)
	}
	return id, nil
}

func rowAndName(args []string) (int, string, error) {
	if len(args) < 1 {
		return 0, "", fmt.Errorf("numéro de ligne requis: %w", apierror.ErrValidation)
	}
	id, err := rowID(args[0])
	return id, strings.Join(args[1:], " "), err
}
