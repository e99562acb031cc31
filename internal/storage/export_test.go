package storage

// Stored counts map entries, expired or not.
func (m *Memory) Stored() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
