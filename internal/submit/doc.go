// Package submit hands job descriptors to a machine.
//
// A Submitter renders the descriptor's job script into the run workspace,
// records the submission in the ledger and passes it to the machine's backend:
//
//   - local runs the script with the machine shell, once per task index with
//     ENSEMBLE_TASK_ID set, and completes the submission synchronously
//   - slurm runs sbatch (through ssh when the machine has a remote, after
//     copying the workspace under the machine's workspace_dir) and records
//     the scheduler job id from "Submitted batch job N"
//   - dryrun renders and records only
//
// Every submission is attempted once. Backend failures mark the ledger entry
// failed and are returned to the caller.
package submit
