package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- Organizations and users ---

func (s *PostgresStore) InsertOrganization(ctx context.Context, org Organization) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organizations (id, name, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, org.ID, org.Name, orNow(org.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert organization: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, org_id, email, name, role, title, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, user.ID, user.OrgID, user.Email, user.Name, user.Role, user.Title, orNow(user.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, email, name, role, title, created_at
		FROM users WHERE id = $1
	`, userID).Scan(&user.ID, &user.OrgID, &user.Email, &user.Name, &user.Role, &user.Title, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, email, name, role, title, created_at
		FROM users ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.OrgID, &user.Email, &user.Name, &user.Role, &user.Title, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// --- Ideas ---

func (s *PostgresStore) InsertIdea(ctx context.Context, idea Idea) error {
	createdAt := orNow(idea.CreatedAt)
	updatedAt := idea.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert idea: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ideas (id, org_id, creator_id, title, objective_id, status, kernel_completion, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, idea.ID, idea.OrgID, idea.CreatorID, idea.Title, idea.ObjectiveID, idea.Status, idea.KernelCompletion, createdAt, updatedAt); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert idea: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO idea_collaborators (idea_id, user_id, role, added_at)
		VALUES ($1, $2, 'owner', $3)
	`, idea.ID, idea.CreatorID, createdAt); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert idea owner: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) GetIdea(ctx context.Context, ideaID string) (Idea, error) {
	var idea Idea
	err := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, creator_id, title, objective_id, status, kernel_completion, created_at, updated_at
		FROM ideas WHERE id = $1
	`, ideaID).Scan(&idea.ID, &idea.OrgID, &idea.CreatorID, &idea.Title, &idea.ObjectiveID,
		&idea.Status, &idea.KernelCompletion, &idea.CreatedAt, &idea.UpdatedAt)
	if err != nil {
		return Idea{}, err
	}
	return idea, nil
}

// ListIdeasForUser returns non-archived ideas where the user is the creator
// or a collaborator, newest activity first.
func (s *PostgresStore) ListIdeasForUser(ctx context.Context, orgID, userID string) ([]Idea, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT i.id, i.org_id, i.creator_id, i.title, i.objective_id,
		       i.status, i.kernel_completion, i.created_at, i.updated_at
		FROM ideas i
		LEFT JOIN idea_collaborators c ON i.id = c.idea_id
		WHERE i.org_id = $1
		  AND i.status != 'archived'
		  AND (i.creator_id = $2 OR c.user_id = $2)
		ORDER BY i.updated_at DESC
	`, orgID, userID)
	if err != nil {
		return nil, fmt.Errorf("list ideas: %w", err)
	}
	defer rows.Close()
	return scanIdeas(rows)
}

func (s *PostgresStore) ListIdeasForObjective(ctx context.Context, objectiveID string) ([]Idea, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, creator_id, title, objective_id, status, kernel_completion, created_at, updated_at
		FROM ideas
		WHERE objective_id = $1 AND status != 'archived'
		ORDER BY updated_at DESC
	`, objectiveID)
	if err != nil {
		return nil, fmt.Errorf("list ideas for objective: %w", err)
	}
	defer rows.Close()
	return scanIdeas(rows)
}

func (s *PostgresStore) UpdateIdea(ctx context.Context, ideaID string, title *string, objectiveID *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE ideas
		SET title = COALESCE($2, title),
		    objective_id = COALESCE($3, objective_id),
		    updated_at = NOW()
		WHERE id = $1
	`, ideaID, title, objectiveID)
	if err != nil {
		return fmt.Errorf("update idea: %w", err)
	}
	return nil
}

func (s *PostgresStore) TouchIdea(ctx context.Context, ideaID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE ideas SET updated_at = NOW() WHERE id = $1`, ideaID)
	if err != nil {
		return fmt.Errorf("touch idea: %w", err)
	}
	return nil
}

func (s *PostgresStore) ArchiveIdea(ctx context.Context, ideaID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE ideas SET status = 'archived', updated_at = NOW() WHERE id = $1
	`, ideaID)
	if err != nil {
		return fmt.Errorf("archive idea: %w", err)
	}
	return nil
}

// UpdateKernelCompletion recounts completed kernel files and stores the
// result on the idea. Returns the new count.
func (s *PostgresStore) UpdateKernelCompletion(ctx context.Context, ideaID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM kernel_files WHERE idea_id = $1 AND is_complete
	`, ideaID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count complete kernel files: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE ideas SET kernel_completion = $2, updated_at = NOW() WHERE id = $1
	`, ideaID, count); err != nil {
		return 0, fmt.Errorf("update kernel completion: %w", err)
	}
	return count, nil
}

func scanIdeas(rows *sql.Rows) ([]Idea, error) {
	var ideas []Idea
	for rows.Next() {
		var idea Idea
		if err := rows.Scan(&idea.ID, &idea.OrgID, &idea.CreatorID, &idea.Title, &idea.ObjectiveID,
			&idea.Status, &idea.KernelCompletion, &idea.CreatedAt, &idea.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan idea: %w", err)
		}
		ideas = append(ideas, idea)
	}
	return ideas, rows.Err()
}

// --- Kernel files ---

func (s *PostgresStore) InsertKernelFile(ctx context.Context, file KernelFile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kernel_files (id, idea_id, file_type, content, content_hash, is_complete, updated_at, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, file.ID, file.IdeaID, file.FileType, file.Content, file.ContentHash, file.IsComplete, orNow(file.UpdatedAt), file.UpdatedBy)
	if err != nil {
		return fmt.Errorf("insert kernel file: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetKernelFile(ctx context.Context, ideaID, fileType string) (KernelFile, error) {
	var file KernelFile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, idea_id, file_type, content, content_hash, is_complete, updated_at, updated_by
		FROM kernel_files WHERE idea_id = $1 AND file_type = $2
	`, ideaID, fileType).Scan(&file.ID, &file.IdeaID, &file.FileType, &file.Content,
		&file.ContentHash, &file.IsComplete, &file.UpdatedAt, &file.UpdatedBy)
	if err != nil {
		return KernelFile{}, err
	}
	return file, nil
}

func (s *PostgresStore) ListKernelFiles(ctx context.Context, ideaID string) ([]KernelFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, idea_id, file_type, content, content_hash, is_complete, updated_at, updated_by
		FROM kernel_files
		WHERE idea_id = $1
		ORDER BY CASE file_type
			WHEN 'summary' THEN 1
			WHEN 'challenge' THEN 2
			WHEN 'approach' THEN 3
			WHEN 'coherent_steps' THEN 4
		END
	`, ideaID)
	if err != nil {
		return nil, fmt.Errorf("list kernel files: %w", err)
	}
	defer rows.Close()

	var files []KernelFile
	for rows.Next() {
		var file KernelFile
		if err := rows.Scan(&file.ID, &file.IdeaID, &file.FileType, &file.Content,
			&file.ContentHash, &file.IsComplete, &file.UpdatedAt, &file.UpdatedBy); err != nil {
			return nil, fmt.Errorf("scan kernel file: %w", err)
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

func (s *PostgresStore) UpdateKernelFileContent(ctx context.Context, ideaID, fileType, content, contentHash, userID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE kernel_files
		SET content = $3, content_hash = $4, updated_at = NOW(), updated_by = $5
		WHERE idea_id = $1 AND file_type = $2
	`, ideaID, fileType, content, contentHash, userID)
	if err != nil {
		return fmt.Errorf("update kernel file: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update kernel file rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) SetKernelFileComplete(ctx context.Context, ideaID, fileType string, complete bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE kernel_files SET is_complete = $3, updated_at = NOW()
		WHERE idea_id = $1 AND file_type = $2
	`, ideaID, fileType, complete)
	if err != nil {
		return fmt.Errorf("set kernel file complete: %w", err)
	}
	return nil
}

// --- Objectives ---

func (s *PostgresStore) InsertObjective(ctx context.Context, objective Objective) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO objectives (id, org_id, title, description, owner_id, timeframe, status, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, objective.ID, objective.OrgID, objective.Title, objective.Description, objective.OwnerID,
		objective.Timeframe, objective.Status, orNow(objective.CreatedAt), objective.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert objective: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetObjective(ctx context.Context, objectiveID string) (Objective, error) {
	var o Objective
	err := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, title, description, owner_id, timeframe, status, created_at, created_by
		FROM objectives WHERE id = $1
	`, objectiveID).Scan(&o.ID, &o.OrgID, &o.Title, &o.Description, &o.OwnerID,
		&o.Timeframe, &o.Status, &o.CreatedAt, &o.CreatedBy)
	if err != nil {
		return Objective{}, err
	}
	return o, nil
}

func (s *PostgresStore) ListObjectives(ctx context.Context, orgID string) ([]Objective, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, title, description, owner_id, timeframe, status, created_at, created_by
		FROM objectives
		WHERE org_id = $1 AND status != 'archived'
		ORDER BY created_at DESC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list objectives: %w", err)
	}
	defer rows.Close()

	var objectives []Objective
	for rows.Next() {
		var o Objective
		if err := rows.Scan(&o.ID, &o.OrgID, &o.Title, &o.Description, &o.OwnerID,
			&o.Timeframe, &o.Status, &o.CreatedAt, &o.CreatedBy); err != nil {
			return nil, fmt.Errorf("scan objective: %w", err)
		}
		objectives = append(objectives, o)
	}
	return objectives, rows.Err()
}

func (s *PostgresStore) UpdateObjective(ctx context.Context, objectiveID string, title, description, timeframe, ownerID, status *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE objectives
		SET title = COALESCE($2, title),
		    description = COALESCE($3, description),
		    timeframe = COALESCE($4, timeframe),
		    owner_id = COALESCE($5, owner_id),
		    status = COALESCE($6, status)
		WHERE id = $1
	`, objectiveID, title, description, timeframe, ownerID, status)
	if err != nil {
		return fmt.Errorf("update objective: %w", err)
	}
	return nil
}

func (s *PostgresStore) ArchiveObjective(ctx context.Context, objectiveID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE objectives SET status = 'archived' WHERE id = $1`, objectiveID)
	if err != nil {
		return fmt.Errorf("archive objective: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountLinkedIdeas(ctx context.Context, objectiveID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM ideas WHERE objective_id = $1 AND status != 'archived'
	`, objectiveID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count linked ideas: %w", err)
	}
	return count, nil
}

// --- Objective files ---

func (s *PostgresStore) InsertObjectiveFile(ctx context.Context, file ObjectiveFile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO objective_files (id, objective_id, content, updated_at)
		VALUES ($1, $2, $3, $4)
	`, file.ID, file.ObjectiveID, file.Content, orNow(file.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert objective file: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetObjectiveFile(ctx context.Context, objectiveID string) (ObjectiveFile, error) {
	var file ObjectiveFile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, objective_id, content, updated_at
		FROM objective_files WHERE objective_id = $1
	`, objectiveID).Scan(&file.ID, &file.ObjectiveID, &file.Content, &file.UpdatedAt)
	if err != nil {
		return ObjectiveFile{}, err
	}
	return file, nil
}

func (s *PostgresStore) UpdateObjectiveFileContent(ctx context.Context, objectiveID, content string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE objective_files SET content = $2, updated_at = NOW() WHERE objective_id = $1
	`, objectiveID, content)
	if err != nil {
		return fmt.Errorf("update objective file: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update objective file rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// --- Context files ---

func (s *PostgresStore) InsertContextFile(ctx context.Context, file ContextFile) error {
	createdAt := orNow(file.CreatedAt)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO context_files (id, idea_id, filename, content, size_bytes, created_by_agent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, file.ID, file.IdeaID, file.Filename, file.Content, file.SizeBytes, file.CreatedByAgent, createdAt, createdAt)
	if err != nil {
		return fmt.Errorf("insert context file: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetContextFile(ctx context.Context, ideaID, filename string) (ContextFile, error) {
	var file ContextFile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, idea_id, filename, content, size_bytes, created_by_agent, created_at, updated_at
		FROM context_files WHERE idea_id = $1 AND filename = $2
	`, ideaID, filename).Scan(&file.ID, &file.IdeaID, &file.Filename, &file.Content,
		&file.SizeBytes, &file.CreatedByAgent, &file.CreatedAt, &file.UpdatedAt)
	if err != nil {
		return ContextFile{}, err
	}
	return file, nil
}

func (s *PostgresStore) GetContextFileByID(ctx context.Context, fileID string) (ContextFile, error) {
	var file ContextFile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, idea_id, filename, content, size_bytes, created_by_agent, created_at, updated_at
		FROM context_files WHERE id = $1
	`, fileID).Scan(&file.ID, &file.IdeaID, &file.Filename, &file.Content,
		&file.SizeBytes, &file.CreatedByAgent, &file.CreatedAt, &file.UpdatedAt)
	if err != nil {
		return ContextFile{}, err
	}
	return file, nil
}

func (s *PostgresStore) ListContextFiles(ctx context.Context, ideaID string) ([]ContextFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, idea_id, filename, content, size_bytes, created_by_agent, created_at, updated_at
		FROM context_files WHERE idea_id = $1 ORDER BY filename
	`, ideaID)
	if err != nil {
		return nil, fmt.Errorf("list context files: %w", err)
	}
	defer rows.Close()

	var files []ContextFile
	for rows.Next() {
		var file ContextFile
		if err := rows.Scan(&file.ID, &file.IdeaID, &file.Filename, &file.Content,
			&file.SizeBytes, &file.CreatedByAgent, &file.CreatedAt, &file.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan context file: %w", err)
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

func (s *PostgresStore) UpdateContextFileContent(ctx context.Context, fileID, content string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE context_files SET content = $2, size_bytes = $3, updated_at = NOW() WHERE id = $1
	`, fileID, content, len(content))
	if err != nil {
		return fmt.Errorf("update context file: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update context file rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpsertContextFile creates the file or replaces its content, keyed by
// (idea_id, filename). Used by the coherence agent's feedback file.
func (s *PostgresStore) UpsertContextFile(ctx context.Context, file ContextFile) error {
	now := orNow(file.UpdatedAt)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO context_files (id, idea_id, filename, content, size_bytes, created_by_agent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (idea_id, filename) DO UPDATE
		SET content = EXCLUDED.content, size_bytes = EXCLUDED.size_bytes, updated_at = EXCLUDED.updated_at
	`, file.ID, file.IdeaID, file.Filename, file.Content, file.SizeBytes, file.CreatedByAgent, orNow(file.CreatedAt), now)
	if err != nil {
		return fmt.Errorf("upsert context file: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteContextFile(ctx context.Context, ideaID, fileID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM context_files WHERE id = $1 AND idea_id = $2
	`, fileID, ideaID)
	if err != nil {
		return false, fmt.Errorf("delete context file: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete context file rows: %w", err)
	}
	return affected > 0, nil
}

// --- Sessions ---

func (s *PostgresStore) InsertSession(ctx context.Context, session Session) error {
	createdAt := orNow(session.CreatedAt)
	lastActive := session.LastActive
	if lastActive.IsZero() {
		lastActive = createdAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, idea_id, objective_id, user_id, agent_type, file_type, title, created_at, last_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, session.ID, session.IdeaID, session.ObjectiveID, session.UserID, session.AgentType,
		session.FileType, session.Title, createdAt, lastActive)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (Session, error) {
	var session Session
	err := s.db.QueryRowContext(ctx, `
		SELECT id, idea_id, objective_id, user_id, agent_type, file_type, title, created_at, last_active
		FROM sessions WHERE id = $1
	`, sessionID).Scan(&session.ID, &session.IdeaID, &session.ObjectiveID, &session.UserID,
		&session.AgentType, &session.FileType, &session.Title, &session.CreatedAt, &session.LastActive)
	if err != nil {
		return Session{}, err
	}
	return session, nil
}

func (s *PostgresStore) ListSessionsForIdea(ctx context.Context, ideaID, agentType, fileType string) ([]Session, error) {
	query := `
		SELECT id, idea_id, objective_id, user_id, agent_type, file_type, title, created_at, last_active
		FROM sessions WHERE idea_id = $1`
	args := []any{ideaID}
	if agentType != "" {
		args = append(args, agentType)
		query += fmt.Sprintf(" AND agent_type = $%d", len(args))
	}
	if fileType != "" {
		args = append(args, fileType)
		query += fmt.Sprintf(" AND file_type = $%d", len(args))
	}
	query += " ORDER BY last_active DESC"
	return s.querySessions(ctx, query, args...)
}

func (s *PostgresStore) ListSessionsForObjective(ctx context.Context, objectiveID, agentType string) ([]Session, error) {
	query := `
		SELECT id, idea_id, objective_id, user_id, agent_type, file_type, title, created_at, last_active
		FROM sessions WHERE objective_id = $1`
	args := []any{objectiveID}
	if agentType != "" {
		args = append(args, agentType)
		query += fmt.Sprintf(" AND agent_type = $%d", len(args))
	}
	query += " ORDER BY last_active DESC"
	return s.querySessions(ctx, query, args...)
}

func (s *PostgresStore) querySessions(ctx context.Context, query string, args ...any) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var session Session
		if err := rows.Scan(&session.ID, &session.IdeaID, &session.ObjectiveID, &session.UserID,
			&session.AgentType, &session.FileType, &session.Title, &session.CreatedAt, &session.LastActive); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *PostgresStore) UpdateSessionTitle(ctx context.Context, sessionID, title string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET title = $2 WHERE id = $1`, sessionID, title)
	if err != nil {
		return fmt.Errorf("update session title: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertSessionMessage(ctx context.Context, message SessionMessage) error {
	message.CreatedAt = orNow(message.CreatedAt)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO session_messages (id, session_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, message.ID, message.SessionID, message.Role, message.Content, message.CreatedAt); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert session message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions SET last_active = $2 WHERE id = $1
	`, message.SessionID, message.CreatedAt); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("touch session: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) ListSessionMessages(ctx context.Context, sessionID string, limit int) ([]SessionMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, created_at
		FROM session_messages
		WHERE session_id = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list session messages: %w", err)
	}
	defer rows.Close()

	var messages []SessionMessage
	for rows.Next() {
		var message SessionMessage
		if err := rows.Scan(&message.ID, &message.SessionID, &message.Role, &message.Content, &message.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session message: %w", err)
		}
		messages = append(messages, message)
	}
	return messages, rows.Err()
}

// NotFound reports whether err is the sentinel for a missing row.
func NotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// orNow substitutes the current time for zero-valued timestamps so callers
// can leave them unset on insert.
func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
